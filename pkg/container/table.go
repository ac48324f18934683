package container

import (
	"fmt"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/framegrab/pkg/pipeline"
)

// buildSampleTable indexes the samples of a progressive track. Fragmented
// init segments carry an empty table and yield no samples.
func buildSampleTable(stbl *mp4.StblBox, firstIndex int) ([]pipeline.Sample, error) {
	if stbl == nil || stbl.Stsz == nil || stbl.Stsz.SampleNumber == 0 {
		return nil, nil
	}
	if stbl.Stts == nil || stbl.Stsc == nil || (stbl.Stco == nil && stbl.Co64 == nil) {
		return nil, fmt.Errorf("%w: incomplete sample table", ErrMalformed)
	}

	count := stbl.Stsz.SampleNumber
	samples := make([]pipeline.Sample, 0, count)

	// Without stss every sample is a sync sample.
	var sync map[uint32]bool
	if stbl.Stss != nil {
		sync = make(map[uint32]bool, len(stbl.Stss.SampleNumber))
		for _, nr := range stbl.Stss.SampleNumber {
			sync[nr] = true
		}
	}

	times := newSttsCursor(stbl.Stts)

	curChunk := -1
	var offset uint64
	for nr := uint32(1); nr <= count; nr++ {
		chunkNr, firstInChunk, err := stbl.Stsc.ChunkNrFromSampleNr(int(nr))
		if err != nil {
			return nil, fmt.Errorf("%w: sample %d: %v", ErrMalformed, nr, err)
		}
		if chunkNr != curChunk || int(nr) == firstInChunk {
			offset, err = chunkOffset(stbl, chunkNr)
			if err != nil {
				return nil, fmt.Errorf("%w: sample %d: %v", ErrMalformed, nr, err)
			}
			for s := uint32(firstInChunk); s < nr; s++ {
				offset += uint64(stbl.Stsz.GetSampleSize(int(s)))
			}
			curChunk = chunkNr
		}

		size := stbl.Stsz.GetSampleSize(int(nr))
		decodeTime, dur, ok := times.next()
		if !ok {
			return nil, fmt.Errorf("%w: stts covers fewer than %d samples", ErrMalformed, count)
		}

		var cto int64
		if stbl.Ctts != nil {
			cto = int64(stbl.Ctts.GetCompositionTimeOffset(nr))
		}

		samples = append(samples, pipeline.Sample{
			Index:           firstIndex + int(nr) - 1,
			DecodeTime:      decodeTime,
			CompositionTime: int64(decodeTime) + cto,
			Duration:        dur,
			Offset:          int64(offset),
			Size:            size,
			IsSync:          sync == nil || sync[nr],
		})
		offset += uint64(size)
	}

	return samples, nil
}

func chunkOffset(stbl *mp4.StblBox, chunkNr int) (uint64, error) {
	if stbl.Stco != nil {
		return stbl.Stco.GetOffset(chunkNr)
	}
	if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
		return 0, fmt.Errorf("chunk %d out of range", chunkNr)
	}
	return stbl.Co64.ChunkOffset[chunkNr-1], nil
}

// sttsCursor walks the run-length coded stts table one sample at a time.
type sttsCursor struct {
	stts  *mp4.SttsBox
	entry int
	used  uint32
	time  uint64
}

func newSttsCursor(stts *mp4.SttsBox) *sttsCursor {
	return &sttsCursor{stts: stts}
}

func (c *sttsCursor) next() (decodeTime uint64, dur uint32, ok bool) {
	for c.entry < len(c.stts.SampleCount) && c.used >= c.stts.SampleCount[c.entry] {
		c.entry++
		c.used = 0
	}
	if c.entry >= len(c.stts.SampleCount) {
		return 0, 0, false
	}
	dur = c.stts.SampleTimeDelta[c.entry]
	decodeTime = c.time
	c.time += uint64(dur)
	c.used++
	return decodeTime, dur, true
}
