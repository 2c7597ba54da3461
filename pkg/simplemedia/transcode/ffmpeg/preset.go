package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Preset describes the encoder settings of an HLS rendition
type Preset struct {
	Name         string   `yaml:"-"`
	VideoCodec   string   `yaml:"video_codec"`
	AudioCodec   string   `yaml:"audio_codec"`
	VideoBitrate string   `yaml:"video_bitrate"`
	AudioBitrate string   `yaml:"audio_bitrate"`
	PixelFormat  string   `yaml:"pixel_format"`
	FrameRate    string   `yaml:"frame_rate"`
	Filters      []string `yaml:"filters"`
	ExtraArgs    []string `yaml:"extra_args"`
}

// DefaultPreset re-encodes to H.264/AAC, which every HLS player accepts.
var DefaultPreset = Preset{
	Name:        "default",
	VideoCodec:  "libx264",
	AudioCodec:  "aac",
	PixelFormat: "yuv420p",
}

// Args returns the encoding arguments of the preset
func (p Preset) Args() []string {
	args := make([]string, 0, 12+len(p.ExtraArgs))
	if p.VideoCodec != "" {
		args = append(args, "-c:v", p.VideoCodec)
	}
	if p.AudioCodec != "" {
		args = append(args, "-c:a", p.AudioCodec)
	}
	if p.VideoBitrate != "" {
		args = append(args, "-b:v", p.VideoBitrate)
	}
	if p.AudioBitrate != "" {
		args = append(args, "-b:a", p.AudioBitrate)
	}
	if p.PixelFormat != "" {
		args = append(args, "-pix_fmt", p.PixelFormat)
	}
	if p.FrameRate != "" {
		args = append(args, "-r", p.FrameRate)
	}
	for _, f := range p.Filters {
		args = append(args, "-vf", f)
	}
	args = append(args, p.ExtraArgs...)
	return args
}

// PresetLibrary holds named presets
type PresetLibrary struct {
	presets map[string]Preset
}

// NewPresetLibrary builds a library; each preset takes its map key as name.
func NewPresetLibrary(m map[string]Preset) *PresetLibrary {
	cp := make(map[string]Preset, len(m))
	for k, v := range m {
		v.Name = k
		v.Filters = append([]string(nil), v.Filters...)
		v.ExtraArgs = append([]string(nil), v.ExtraArgs...)
		cp[k] = v
	}
	return &PresetLibrary{presets: cp}
}

func (l *PresetLibrary) Get(name string) (Preset, bool) {
	if l == nil {
		return Preset{}, false
	}
	p, ok := l.presets[name]
	return p, ok
}

// LoadPresetFile reads presets from YAML of the form
//
//	presets:
//	  hd:
//	    video_codec: libx264
//	    video_bitrate: 4M
func LoadPresetFile(path string) (*PresetLibrary, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("load preset file: %w", err)
	}
	return ParsePresets(data)
}

// ParsePresets decodes a preset document
func ParsePresets(data []byte) (*PresetLibrary, error) {
	var payload struct {
		Presets map[string]Preset `yaml:"presets"`
	}
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse preset file: %w", err)
	}
	return NewPresetLibrary(payload.Presets), nil
}
