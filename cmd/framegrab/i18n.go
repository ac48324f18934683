// Package main provides localization for the framegrab CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Output":     "出力",
		"Extraction": "抽出",
		"Decoding":   "デコード",
		"Debug":      "デバッグ",
		"Logging":    "ログ",

		"Contact sheet": "コンタクトシート",

		// Root command
		"Extract exact still frames from video files":                                                           "動画ファイルから正確な静止画を抽出",
		"framegrab decodes only the frames needed for the requested timestamps and writes them as JPEG images.": "framegrabは指定されたタイムスタンプに必要なフレームだけをデコードし、JPEG画像として書き出します。",
		"YAML configuration file":                                                                               "YAML設定ファイル",

		// Commands
		"Extract frames at the given timestamps":            "指定したタイムスタンプのフレームを抽出",
		"Extract frames for every video of a YAML manifest": "YAMLマニフェストの全動画からフレームを抽出",
		"Show the video track of a file":                    "ファイルの映像トラックを表示",
		"Serve the extraction HTTP API":                     "抽出HTTP APIを提供",

		// Extract flags
		"Timestamp in seconds (repeatable)":                         "タイムスタンプ（秒、複数指定可）",
		"Label for the timestamp at the same position (repeatable)": "同じ位置のタイムスタンプに付けるラベル（複数指定可）",
		"Output directory":                                          "出力ディレクトリ",
		"Output directory for jobs without their own":               "出力先を指定していないジョブの出力ディレクトリ",
		"Videos processed at the same time":                         "同時に処理する動画数",

		// Output flags
		"JPEG quality (1-100)":                           "JPEG品質（1-100）",
		"Quality preset (low, medium, high)":             "品質プリセット（low, medium, high）",
		"Downscale frames wider than this (0 = keep)":    "この幅を超えるフレームを縮小（0 = そのまま）",
		"Draw target labels onto the frames":             "フレームにラベルを描画",
		"Font file for labels":                           "ラベル用フォントファイル",
		"Time budget per video":                          "動画ごとの制限時間",
		"Max distance between a timestamp and its frame": "タイムスタンプとフレームの最大許容差",
		"Do not fall back to whole-file ffmpeg seeking":  "ffmpegによるファイル全体のシークにフォールバックしない",
		"Path to the ffmpeg executable":                  "ffmpeg実行ファイルのパス",

		// Contact sheet and summary flags
		"Also write a contact sheet of all frames":          "全フレームのコンタクトシートも書き出す",
		"Frames per contact sheet row":                      "コンタクトシート1行あたりのフレーム数",
		"Width of each contact sheet cell":                  "コンタクトシートの各セルの幅",
		"Write a Markdown summary of the run to this file": "実行結果のMarkdownサマリーをこのファイルに書き出す",

		// Serve flags
		"Port to listen on":                   "待ち受けポート",
		"Origin allowed by CORS (repeatable)": "CORSで許可するオリジン（複数指定可）",
		"Max upload size in bytes":            "最大アップロードサイズ（バイト）",

		// Debug flags
		"Enable debug output":        "デバッグ出力を有効化",
		"Directory for debug output": "デバッグ出力のディレクトリ",

		// Logging flags
		"Log level (debug, info, warn, error)": "ログレベル（debug, info, warn, error）",
		"Suppress all log output":              "全てのログ出力を抑制",

		// Runtime messages
		"Extracting %d frames from %s":            "%[2]s から %[1]d フレームを抽出中",
		"Wrote %d of %d frames to %s":             "%[3]s に %[1]d / %[2]d フレームを書き出しました",
		"No frame for %.3fs":                      "%.3f秒 のフレームはありません",
		"Running %d jobs with concurrency %d":     "%d 件のジョブを並列数 %d で実行中",
		"Batch finished: %d of %d jobs succeeded": "バッチ完了: %d / %d 件のジョブが成功しました",
		"Failed to write frames for %s: %v":       "%s のフレームの書き出しに失敗しました: %v",
		"Interrupted, shutting down...":           "中断されました。シャットダウン中...",
		"Wrote contact sheet %s (%dx%d)":          "コンタクトシート %s (%dx%d) を書き出しました",
		"Summary written to %s":                   "サマリーを %s に書き出しました",

		// Batch summary
		"Extraction Summary": "抽出サマリー",
		"Generated":          "生成日時",
		"Version":            "バージョン",
		"Elapsed":            "所要時間",
		"Settings":           "設定",
		"Setting":            "項目",
		"Value":              "値",
		"Quality":            "品質",
		"Max Width":          "最大幅",
		"Original":           "元のサイズ",
		"Tolerance":          "許容差",
		"Timeout":            "タイムアウト",
		"Fallback":           "フォールバック",
		"Enabled":            "有効",
		"Disabled":           "無効",
		"Concurrency":        "並列数",
		"Jobs":               "ジョブ",
		"No jobs.":           "ジョブはありません。",
		"Job":                "ジョブ",
		"Video":              "動画",
		"Frames":             "フレーム",
		"Result":             "結果",
		"Error":              "エラー",
		"Frames found":       "取得フレーム数",
		"Requested":          "指定時刻",
		"Label":              "ラベル",
		"Frame":              "フレーム時刻",
		"Source":             "取得方法",
		"Absent":             "なし",

		// Probe output
		"Codec":                                                    "コーデック",
		"Size":                                                     "サイズ",
		"Timescale":                                                "タイムスケール",
		"Samples":                                                  "サンプル数",
		"sync":                                                     "同期",
		"Duration":                                                 "長さ",
		"Decoder":                                                  "デコーダ",
		"none":                                                     "なし",
		"The file is damaged; only the readable part was indexed.": "ファイルが破損しています。読み取れた部分のみを解析しました。",

		// Error messages
		"A video argument is required":    "動画引数が必要です",
		"A manifest argument is required": "マニフェスト引数が必要です",
		"%d jobs failed":                  "%d 件のジョブが失敗しました",
	})
}
