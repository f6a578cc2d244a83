// Package config decodes and validates the recognized SLAM coordination
// core configuration options (spec.md §6), the way
// go.viam.com/rdk/services/slam decodes its AttrConfig via
// github.com/mitchellh/mapstructure.
package config

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Config holds every recognized configuration option from spec.md §6.
type Config struct {
	DoMapping          bool `mapstructure:"do_mapping" json:"do_mapping"`
	SLAMEnabled        bool `mapstructure:"slam_enabled" json:"slam_enabled"`
	DoKFReActivation   bool `mapstructure:"do_kf_reactivation" json:"do_kf_reactivation"`
	ContinuousPCOutput bool `mapstructure:"continuous_pc_output" json:"continuous_pc_output"`
	DisplayDepthMap    bool `mapstructure:"display_depth_map" json:"display_depth_map"`

	SLAMImageWidth  int `mapstructure:"slam_image_width" json:"slam_image_width"`
	SLAMImageHeight int `mapstructure:"slam_image_height" json:"slam_image_height"`

	MinNumMapped      int `mapstructure:"min_num_mapped" json:"min_num_mapped"`
	InitPhaseCount    int `mapstructure:"init_phase_count" json:"init_phase_count"`
	RelocalizeThreads int `mapstructure:"relocalize_threads" json:"relocalize_threads"`

	KFDistWeight  float64 `mapstructure:"kf_dist_weight" json:"kf_dist_weight"`
	KFUsageWeight float64 `mapstructure:"kf_usage_weight" json:"kf_usage_weight"`
}

// Default returns the configuration used when no attributes are supplied,
// with constants matching the ones named across spec.md §4.
func Default() Config {
	return Config{
		DoMapping:         true,
		SLAMEnabled:       true,
		MinNumMapped:      5,
		InitPhaseCount:    5,
		RelocalizeThreads: 4,
		SLAMImageWidth:    640,
		SLAMImageHeight:   480,
		KFDistWeight:      3,
		KFUsageWeight:     6,
	}
}

// Decode maps a generic attribute bag (e.g. parsed JSON) onto a Config on
// top of Default(), mirroring runtimeConfigValidation's decode-then-check
// shape in the teacher's SLAM service.
func Decode(attributes map[string]interface{}) (*Config, error) {
	cfg := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  &cfg,
	})
	if err != nil {
		return nil, errors.Wrap(err, "building config decoder")
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "decoding slam config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the required-parameter checks named in spec.md §6:
// DoMapping must be true to initialize.
func (c *Config) Validate() error {
	if !c.DoMapping {
		return errors.New("config: do_mapping must be true to initialize")
	}
	if c.MinNumMapped < 0 {
		return errors.Errorf("config: min_num_mapped must be >= 0, got %d", c.MinNumMapped)
	}
	if c.InitPhaseCount < 0 {
		return errors.Errorf("config: init_phase_count must be >= 0, got %d", c.InitPhaseCount)
	}
	if c.RelocalizeThreads <= 0 {
		return errors.Errorf("config: relocalize_threads must be > 0, got %d", c.RelocalizeThreads)
	}
	return nil
}
