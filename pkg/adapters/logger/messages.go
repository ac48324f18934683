package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Orchestration level messages (info)
		"Extracting %d frames from %d bytes":                   "%d バイトから %d フレームを抽出中",
		"Extracted %d of %d frames in %s (%s)":                 "%d / %d フレームを %s で抽出しました (%s)",
		"Extracting %s (%d targets)":                           "%s を抽出中 (%d 件)",
		"Falling back to whole-file extraction for %d targets": "%d 件をファイル全体からの抽出に切り替えます",
		"Fallback produced %d of %d frames":                    "フォールバックで %d / %d フレームを取得しました",

		// HTTP server
		"Server listening on %s":                       "%s で待ち受け中",
		"Shutting down server":                         "サーバーを停止中",
		"Processing upload, extracting %d screenshots": "アップロードを処理中、%d 枚のスクリーンショットを抽出します",

		// Parser and scheduler (debug)
		"Video track %d: %s %dx%d, timescale %d":                            "映像トラック %d: %s %dx%d, タイムスケール %d",
		"Parse finished with %d samples":                                    "解析完了: %d サンプル",
		"Box %s at %d extends to end of file":                               "オフセット %[2]d の %[1]s ボックスはファイル末尾まで続きます",
		"Dropping %d fragments that arrived without metadata":               "メタデータより前に届いた %d 個のフラグメントを破棄します",
		"Planned %d ranges, %d targets unplannable":                         "%d 区間を計画しました (計画不能 %d 件)",
		"Target %d at %.3fs cannot be planned":                              "ターゲット %d (%.3f秒) は計画できません",
		"Target %d at %.3fs has no preceding sync sample":                   "ターゲット %d (%.3f秒) の前に同期サンプルがありません",
		"Target %d at %.3fs is outside the track":                           "ターゲット %d (%.3f秒) はトラックの範囲外です",
		"Scheduling %d ranges as %d runs":                                   "%d 区間を %d 回の連続デコードにまとめます",
		"All targets satisfied, skipping %d runs":                           "全ターゲットが揃ったため %d 回のデコードを省略します",
		"Decoder configured for %s %dx%d":                                   "デコーダを %s %dx%d 用に設定しました",
		"Decoded %d units in %d runs, %d frames, %d matched":                "%d ユニットを %d 回でデコード, %d フレーム, %d 件一致",
		"Encoded target %d at %dus: %d bytes":                               "ターゲット %d (%dus) をエンコード: %d バイト",
		"Compositing %d shots with %d workers":                              "%d 枚を %d ワーカーで合成中",
		"Contact sheet %dx%d with %d of %d shots":                           "コンタクトシート %dx%d (%d / %d 枚)",
		"Video duration: %.2f seconds":                                      "動画の長さ: %.2f 秒",
		"Skipping timestamp %.2fs (beyond video duration of %.2fs)":         "%.2f秒 をスキップします (動画の長さ %.2f秒 を超えています)",
		"Direct extraction failed at %.2fs, trying conversion: %v":          "%.2f秒 の直接抽出に失敗しました。変換を試します: %v",
		"Conversion failed at %.2fs, trying keyframe extraction: %v":        "%.2f秒 の変換に失敗しました。キーフレーム抽出を試します: %v",

		// Warnings
		"Extraction timed out after %s":                     "抽出が %s でタイムアウトしました",
		"Input is damaged, continuing with %d samples: %v":  "入力が破損しています。%d サンプルで続行します: %v",
		"Ignoring extra moov box at offset %d":              "オフセット %d の余分な moov ボックスを無視します",
		"Reading source at %d failed: %v":                   "オフセット %d の読み込みに失敗しました: %v",
		"Decoding samples %d..%d failed: %v":                "サンプル %d..%d のデコードに失敗しました: %v",
		"Flush before samples %d..%d failed: %v":            "サンプル %d..%d の前のフラッシュに失敗しました: %v",
		"Final flush failed: %v":                            "最後のフラッシュに失敗しました: %v",
		"Closing decoder failed: %v":                        "デコーダの終了に失敗しました: %v",
		"Extraction pipeline stopped: %v":                   "抽出パイプラインが停止しました: %v",
		"Failed to encode frame for target %d: %v":          "ターゲット %d のフレームのエンコードに失敗しました: %v",
		"Failed to encode fallback frame for target %d: %v": "ターゲット %d のフォールバックフレームのエンコードに失敗しました: %v",
		"Failed to save decoded frame %d: %v":               "デコード済みフレーム %d の保存に失敗しました: %v",
		"Failed to decode shot %d: %v":                      "ショット %d のデコードに失敗しました: %v",
		"Fallback unavailable: %v":                          "フォールバックを利用できません: %v",
		"Could not get video duration: %v":                  "動画の長さを取得できませんでした: %v",
		"Error extracting frame at %.2fs: %v":               "%.2f秒 のフレーム抽出に失敗しました: %v",

		// Errors
		"Extraction failed: %v":     "抽出に失敗しました: %v",
		"Failed to save upload: %v": "アップロードの保存に失敗しました: %v",
		"Job %s failed: %v":         "ジョブ %s が失敗しました: %v",
	})
}
