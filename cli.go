package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/camden-git/faceenhancer/config"
	"github.com/camden-git/faceenhancer/detection"
	"github.com/camden-git/faceenhancer/enhance"
	"github.com/camden-git/faceenhancer/media"
	"github.com/camden-git/faceenhancer/quality"
	"github.com/camden-git/faceenhancer/utils"
	"github.com/camden-git/faceenhancer/workers"
)

type enhanceFlags struct {
	input      string
	output     string
	batch      bool
	configFile string
	sharpen    float64
	denoise    float64
	contrast   float64
	brightness float64
	scale      int
	verbose    bool
	metrics    bool
	set        map[string]bool
}

func parseEnhanceFlags(args []string) (*enhanceFlags, error) {
	f := &enhanceFlags{set: map[string]bool{}}
	fs := flag.NewFlagSet("enhance", flag.ContinueOnError)
	fs.StringVar(&f.input, "i", "", "input image, or directory with -batch")
	fs.StringVar(&f.output, "o", "", "output image, or directory with -batch")
	fs.BoolVar(&f.batch, "batch", false, "process every supported image in the input directory")
	fs.StringVar(&f.configFile, "config", "", "key=value parameter file")
	fs.Float64Var(&f.sharpen, "sharpen", 0, "sharpen strength")
	fs.Float64Var(&f.denoise, "denoise", 0, "noise reduction strength")
	fs.Float64Var(&f.contrast, "contrast", 0, "contrast gain")
	fs.Float64Var(&f.brightness, "brightness", 0, "brightness offset")
	fs.IntVar(&f.scale, "scale", 1, "upscale factor")
	fs.BoolVar(&f.verbose, "v", false, "debug logging")
	fs.BoolVar(&f.metrics, "metrics", false, "report quality metrics")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// resolve merges defaults < params file < flags into the final params and
// fills input/output/batch/verbose from the file when no flag gave them.
func (f *enhanceFlags) resolve(log logrus.FieldLogger) (enhance.Params, error) {
	params := enhance.DefaultParams()
	if f.configFile != "" {
		pf, err := config.LoadParamsFile(f.configFile, params, log)
		if err != nil {
			return params, err
		}
		params = pf.Params
		if !f.set["i"] && pf.InputPath != "" {
			f.input = pf.InputPath
		}
		if !f.set["o"] && pf.OutputPath != "" {
			f.output = pf.OutputPath
		}
		if !f.set["batch"] && pf.BatchMode != nil {
			f.batch = *pf.BatchMode
		}
		if !f.set["v"] && pf.Verbose != nil {
			f.verbose = *pf.Verbose
		}
	}
	if f.set["sharpen"] {
		params.SharpenStrength = f.sharpen
	}
	if f.set["denoise"] {
		params.DenoiseStrength = f.denoise
	}
	if f.set["contrast"] {
		params.Contrast = f.contrast
	}
	if f.set["brightness"] {
		params.Brightness = f.brightness
	}
	if f.set["scale"] {
		params.Scale = f.scale
	}
	if f.input == "" || f.output == "" {
		return params, errors.New("both -i and -o are required")
	}
	return params.Normalized(), nil
}

// runEnhance returns the process exit code: 0 when the single image or at
// least one batch image succeeded.
func runEnhance(args []string) (int, error) {
	flags, err := parseEnhanceFlags(args)
	if err != nil {
		return 2, nil
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return 1, err
	}
	params, err := flags.resolve(log)
	if err != nil {
		return 2, err
	}
	if flags.verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	locator := detection.LoadLocator(cfg.Detection(), log)
	defer locator.Close()
	enhancer := enhance.NewEnhancer(locator, log)

	if flags.batch {
		return enhanceDirectory(enhancer, flags, params, cfg.EncodeOptions(), log)
	}
	return enhanceFile(enhancer, flags, params, cfg.OutputQuality, log)
}

func enhanceFile(enhancer *enhance.Enhancer, flags *enhanceFlags, params enhance.Params, jpegQuality int, log logrus.FieldLogger) (int, error) {
	data, err := os.ReadFile(flags.input)
	if err != nil {
		return 1, fmt.Errorf("read input: %w", err)
	}
	img, err := media.Decode(data)
	if err != nil {
		return 1, err
	}
	defer img.Close()

	format, err := media.FormatForPath(flags.output)
	if err != nil {
		return 1, fmt.Errorf("output %s: %w", flags.output, err)
	}

	res := enhancer.Enhance(img, params)
	defer res.Close()
	if !res.Success {
		return 1, fmt.Errorf("enhance %s: %w", flags.input, res.Err)
	}

	encoded, err := media.Encode(res.Image, media.EncodeOptions{Format: format, Quality: jpegQuality})
	if err != nil {
		return 1, err
	}
	if dir := filepath.Dir(flags.output); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 1, fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(flags.output, encoded, 0644); err != nil {
		return 1, fmt.Errorf("write output: %w", err)
	}

	fields := logrus.Fields{
		"input":  flags.input,
		"output": flags.output,
		"faces":  len(res.Faces),
		"ms":     res.Timings.Total.Milliseconds(),
	}
	if flags.metrics {
		report := quality.Compare(img, res.Image)
		fields["psnr"] = fmt.Sprintf("%.2f", report.PSNR)
		fields["ssim"] = fmt.Sprintf("%.4f", report.SSIM)
		fields["sharpness_before"] = fmt.Sprintf("%.1f", report.Input.Sharpness)
		fields["sharpness_after"] = fmt.Sprintf("%.1f", report.Output.Sharpness)
	}
	for _, s := range res.Timings.Stages {
		log.WithFields(logrus.Fields{"stage": s.Stage, "ms": s.Duration.Milliseconds()}).Debug("stage timing")
	}
	log.WithFields(fields).Info("enhanced image")
	return 0, nil
}

func enhanceDirectory(enhancer *enhance.Enhancer, flags *enhanceFlags, params enhance.Params, encode media.EncodeOptions, log logrus.FieldLogger) (int, error) {
	inputs, err := utils.ListImages(flags.input)
	if err != nil {
		return 1, err
	}
	if len(inputs) == 0 {
		return 1, fmt.Errorf("no supported images in %s", flags.input)
	}

	store, err := media.NewLocalStorage(flags.output, map[media.AssetType]string{media.AssetTypeEnhanced: "."}, log)
	if err != nil {
		return 1, err
	}
	runner := workers.NewBatchRunner(enhancer, media.NewProcessor(store, log), nil, nil, log)

	start := time.Now()
	summary := runner.EnhanceBatch(context.Background(), inputs, workers.BatchOptions{
		Params:  params,
		Encode:  media.EncodeOptions{Quality: encode.Quality},
		Metrics: flags.metrics,
	})
	for _, item := range summary.Items {
		if item.Err != nil {
			log.WithField("input", item.Input).WithError(item.Err).Error("failed")
		}
	}
	log.WithFields(logrus.Fields{
		"result":  summary.String(),
		"seconds": time.Since(start).Seconds(),
	}).Info("batch complete")
	fmt.Printf("%s images enhanced\n", summary.String())

	if !summary.OK() {
		return 1, nil
	}
	return 0, nil
}
