package backend

import (
	"context"
	"math"
	"sort"
	"strings"
)

// MediaFormat is one selectable quality, distilled from the engine's raw
// format list for presentation and selection.
type MediaFormat struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	VCodec     string  `json:"vcodec"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPSRounded int     `json:"fps"`
	Bitrate    float64 `json:"tbr"`
	HasAudio   bool    `json:"has_audio"`
	SizeBytes  int64   `json:"size_bytes"`
	SizeText   string  `json:"size_text"`
}

// MetadataResult is the distilled outcome of a metadata fetch.
type MetadataResult struct {
	Info                  *RawInfo      `json:"info"`
	Formats               []MediaFormat `json:"formats"`
	SubtitleLanguages     []string      `json:"subtitle_languages"`
	AutoSubtitleLanguages []string      `json:"auto_subtitle_languages"`
}

// MetadataOutcome is delivered once on the channel returned by
// MetadataTask.Start.
type MetadataOutcome struct {
	Result *MetadataResult
	Err    error
}

// MetadataTask fetches and distills metadata for one item off the caller's
// goroutine.
type MetadataTask struct {
	url    string
	engine Engine
}

func NewMetadataTask(engine Engine, url string) *MetadataTask {
	return &MetadataTask{url: url, engine: engine}
}

// Start launches the fetch and returns a channel that receives exactly one
// outcome before closing.
func (t *MetadataTask) Start(ctx context.Context) <-chan MetadataOutcome {
	out := make(chan MetadataOutcome, 1)
	go func() {
		defer close(out)
		info, err := t.engine.ExtractInfo(ctx, t.url)
		if err != nil {
			out <- MetadataOutcome{Err: err}
			return
		}
		out <- MetadataOutcome{Result: &MetadataResult{
			Info:                  info,
			Formats:               BuildMediaFormats(info),
			SubtitleLanguages:     subtitleLanguages(info.Subtitles),
			AutoSubtitleLanguages: subtitleLanguages(info.AutomaticCaptions),
		}}
	}()
	return out
}

// BuildMediaFormats filters the raw format list down to real video formats
// and sorts them best-first. Formats with no video stream or unknown height
// are presentation noise and dropped.
func BuildMediaFormats(info *RawInfo) []MediaFormat {
	formats := make([]MediaFormat, 0, len(info.Formats))
	for _, raw := range info.Formats {
		if raw.VCodec == "" || raw.VCodec == "none" || raw.Height <= 0 {
			continue
		}

		size := raw.Filesize
		if size <= 0 {
			size = raw.FilesizeApprox
		}

		formats = append(formats, MediaFormat{
			FormatID:   raw.FormatID,
			Ext:        raw.Ext,
			VCodec:     codecFamily(raw.VCodec),
			Width:      raw.Width,
			Height:     raw.Height,
			FPSRounded: int(math.Round(raw.FPS)),
			Bitrate:    raw.TBR,
			HasAudio:   raw.ACodec != "" && raw.ACodec != "none",
			SizeBytes:  size,
			SizeText:   FormatSize(size),
		})
	}

	sort.SliceStable(formats, func(i, j int) bool {
		if formats[i].Height != formats[j].Height {
			return formats[i].Height > formats[j].Height
		}
		if formats[i].FPSRounded != formats[j].FPSRounded {
			return formats[i].FPSRounded > formats[j].FPSRounded
		}
		return formats[i].Bitrate > formats[j].Bitrate
	})
	return formats
}

// codecFamily trims a codec string to its family name, e.g.
// "avc1.640028" to "avc1".
func codecFamily(codec string) string {
	if i := strings.IndexByte(codec, '.'); i >= 0 {
		return codec[:i]
	}
	return codec
}

// subtitleLanguages extracts the supported language codes from an engine
// subtitle map, sorted and deduplicated.
func subtitleLanguages(tracks map[string][]SubtitleTrack) []string {
	langs := make([]string, 0, len(tracks))
	for code, entries := range tracks {
		if len(entries) == 0 {
			continue
		}
		if !IsSupportedSubtitleLanguage(code) {
			continue
		}
		langs = append(langs, code)
	}
	sort.Strings(langs)
	return dedupeSorted(langs)
}
