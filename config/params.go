package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/camden-git/faceenhancer/enhance"
)

// ParamsFile is the parsed content of a key=value parameter file. Params
// starts from the defaults passed to LoadParamsFile; the CLI-only keys are
// nil or empty when absent.
type ParamsFile struct {
	Params     enhance.Params
	InputPath  string
	OutputPath string
	BatchMode  *bool
	Verbose    *bool
}

type paramSetter func(p *ParamsFile, value string) error

func floatParam(set func(*enhance.Params, float64)) paramSetter {
	return func(pf *ParamsFile, value string) error {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		set(&pf.Params, v)
		return nil
	}
}

func intParam(set func(*enhance.Params, int)) paramSetter {
	return func(pf *ParamsFile, value string) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		set(&pf.Params, v)
		return nil
	}
}

func boolParam(set func(*ParamsFile, bool)) paramSetter {
	return func(pf *ParamsFile, value string) error {
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		set(pf, v)
		return nil
	}
}

var paramSetters = map[string]paramSetter{
	"sharpen_strength":       floatParam(func(p *enhance.Params, v float64) { p.SharpenStrength = v }),
	"sharpen_radius":         floatParam(func(p *enhance.Params, v float64) { p.SharpenRadius = v }),
	"sharpen_threshold":      floatParam(func(p *enhance.Params, v float64) { p.SharpenThreshold = v }),
	"noise_reduction":        floatParam(func(p *enhance.Params, v float64) { p.DenoiseStrength = v }),
	"template_window_size":   intParam(func(p *enhance.Params, v int) { p.TemplateWindowSize = v }),
	"search_window_size":     intParam(func(p *enhance.Params, v int) { p.SearchWindowSize = v }),
	"edge_enhancement":       floatParam(func(p *enhance.Params, v float64) { p.EdgeEnhancement = v }),
	"skin_smoothing":         floatParam(func(p *enhance.Params, v float64) { p.SkinSmoothing = v }),
	"contrast":               floatParam(func(p *enhance.Params, v float64) { p.Contrast = v }),
	"brightness":             floatParam(func(p *enhance.Params, v float64) { p.Brightness = v }),
	"clahe_clip_limit":       floatParam(func(p *enhance.Params, v float64) { p.CLAHEClipLimit = v }),
	"clahe_tile_grid":        intParam(func(p *enhance.Params, v int) { p.CLAHETileGrid = v }),
	"super_resolution_scale": intParam(func(p *enhance.Params, v int) { p.Scale = v }),
	"histogram_mode": func(pf *ParamsFile, value string) error {
		pf.Params.HistogramMode = enhance.ParseHistogramMode(value)
		return nil
	},
	"input_path":  func(pf *ParamsFile, value string) error { pf.InputPath = value; return nil },
	"output_path": func(pf *ParamsFile, value string) error { pf.OutputPath = value; return nil },
	"batch_mode":  boolParam(func(pf *ParamsFile, v bool) { pf.BatchMode = &v }),
	"verbose":     boolParam(func(pf *ParamsFile, v bool) { pf.Verbose = &v }),
}

// LoadParamsFile overlays the values in path on base. Unknown keys and
// values that fail to parse are logged and skipped; only an unreadable file
// is an error.
func LoadParamsFile(path string, base enhance.Params, log logrus.FieldLogger) (*ParamsFile, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read params file '%s': %w", path, err)
	}

	pf := &ParamsFile{Params: base}
	for key, value := range values {
		setter, ok := paramSetters[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			log.WithField("key", key).Warn("ignoring unknown parameter")
			continue
		}
		if err := setter(pf, strings.TrimSpace(value)); err != nil {
			log.WithError(err).WithFields(logrus.Fields{"key": key, "value": value}).Warn("ignoring unparsable parameter")
		}
	}
	return pf, nil
}
