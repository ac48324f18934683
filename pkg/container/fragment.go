package container

import (
	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/framegrab/pkg/pipeline"
)

// fragmentSamples indexes the samples of the selected track in one movie
// fragment. moofStart is the absolute offset of the moof box, which is the
// default base for trun data offsets.
func (p *Parser) fragmentSamples(moof *mp4.MoofBox, moofStart int64) []pipeline.Sample {
	var samples []pipeline.Sample

	for _, traf := range moof.Trafs {
		if traf.Tfhd == nil || traf.Tfhd.TrackID != p.track.ID {
			continue
		}

		base := moofStart
		if traf.Tfhd.HasBaseDataOffset() {
			base = int64(traf.Tfhd.BaseDataOffset)
		}

		decodeTime := p.nextDecodeTime
		if traf.Tfdt != nil {
			decodeTime = traf.Tfdt.BaseMediaDecodeTime()
		}

		// Without an explicit data offset a run continues where the previous
		// run of this traf ended.
		offset := base
		for _, trun := range traf.Truns {
			trun.AddSampleDefaultValues(traf.Tfhd, p.trex)
			if trun.HasDataOffset() {
				offset = base + int64(trun.DataOffset)
			}

			for _, s := range trun.Samples {
				samples = append(samples, pipeline.Sample{
					Index:           p.nextIndex,
					DecodeTime:      decodeTime,
					CompositionTime: int64(decodeTime) + int64(s.CompositionTimeOffset),
					Duration:        s.Dur,
					Offset:          offset,
					Size:            s.Size,
					IsSync:          mp4.IsSyncSampleFlags(s.Flags),
				})
				p.nextIndex++
				decodeTime += uint64(s.Dur)
				offset += int64(s.Size)
			}
		}
		p.nextDecodeTime = decodeTime
	}

	return samples
}
