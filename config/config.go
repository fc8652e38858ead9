package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/camden-git/faceenhancer/detection"
	"github.com/camden-git/faceenhancer/media"
)

const (
	OutputStoreLocal = "local"
	OutputStoreAzure = "azure"
)

type Config struct {
	// server
	Host           string        `envconfig:"HOST" default:""`
	Port           int           `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"120s"`
	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" default:"20971520"`
	AllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// face detection
	DetectorOrder        []string `envconfig:"DETECTOR_ORDER" default:"haar,lbp,dnn,pico"`
	HaarCascadePath      string   `envconfig:"HAAR_CASCADE_PATH" default:"./models/haarcascade_frontalface_alt.xml"`
	LBPCascadePath       string   `envconfig:"LBP_CASCADE_PATH" default:"./models/lbpcascade_frontalface.xml"`
	FaceDNNConfigPath    string   `envconfig:"FACE_DNN_CONFIG_PATH" default:"./models/deploy.prototxt.txt"`
	FaceDNNModelPath     string   `envconfig:"FACE_DNN_MODEL_PATH" default:"./models/res10_300x300_ssd_iter_140000_fp16.caffemodel"`
	FaceDNNConfidence    float32  `envconfig:"FACE_DNN_CONFIDENCE" default:"0.5"`
	PicoCascadePath      string   `envconfig:"PICO_CASCADE_PATH" default:"./models/facefinder"`
	RetinaFaceModelPath  string   `envconfig:"RETINAFACE_MODEL_PATH" default:"./models/retinaface.onnx"`
	FaceOverlapThreshold float64  `envconfig:"FACE_OVERLAP_THRESHOLD" default:"0.3"`
	FaceQuality          bool     `envconfig:"FACE_QUALITY_ASSESSMENT" default:"false"`

	// enhancement defaults
	ParamsFile    string `envconfig:"PARAMS_FILE"`
	OutputFormat  string `envconfig:"OUTPUT_FORMAT" default:"jpg"`
	OutputQuality int    `envconfig:"OUTPUT_QUALITY" default:"95"`

	// output storage
	StoreOutputs          bool   `envconfig:"STORE_OUTPUTS" default:"true"`
	OutputStore           string `envconfig:"OUTPUT_STORE" default:"local"`
	MediaStoragePath      string `envconfig:"MEDIA_STORAGE_PATH" default:"./media_storage"`
	AzureConnectionString string `envconfig:"AZURE_STORAGE_CONNECTION_STRING"`
	AzureContainer        string `envconfig:"AZURE_STORAGE_CONTAINER" default:"enhanced"`

	// history; empty disables it
	DatabasePath string `envconfig:"DATABASE_PATH" default:"enhancements.db"`

	// batches submitted over HTTP
	BatchRoot      string `envconfig:"BATCH_ROOT" default:"."`
	BatchWorkers   int    `envconfig:"BATCH_WORKERS" default:"2"`
	BatchQueueSize int    `envconfig:"BATCH_QUEUE_SIZE" default:"16"`
}

// Load reads an optional .env file, then the process environment.
func Load(log logrus.FieldLogger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded, using process environment")
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid MAX_UPLOAD_BYTES %d", c.MaxUploadBytes)
	}
	if _, err := media.ParseFormat(c.OutputFormat); err != nil {
		return fmt.Errorf("invalid OUTPUT_FORMAT: %w", err)
	}
	if c.OutputQuality < 1 || c.OutputQuality > 100 {
		return fmt.Errorf("invalid OUTPUT_QUALITY %d", c.OutputQuality)
	}
	switch c.OutputStore {
	case OutputStoreLocal:
	case OutputStoreAzure:
		if c.AzureConnectionString == "" {
			return fmt.Errorf("OUTPUT_STORE=azure requires AZURE_STORAGE_CONNECTION_STRING")
		}
	default:
		return fmt.Errorf("invalid OUTPUT_STORE '%s'", c.OutputStore)
	}
	if c.BatchWorkers <= 0 {
		c.BatchWorkers = 1
	}
	if c.BatchQueueSize <= 0 {
		c.BatchQueueSize = 16
	}
	abs, err := filepath.Abs(c.BatchRoot)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for batch root '%s': %w", c.BatchRoot, err)
	}
	c.BatchRoot = abs
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Detection maps the detector settings onto a detection.Config.
func (c *Config) Detection() detection.Config {
	order := make([]string, 0, len(c.DetectorOrder))
	for _, name := range c.DetectorOrder {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			order = append(order, name)
		}
	}
	return detection.Config{
		Order:           order,
		HaarCascadePath: c.HaarCascadePath,
		LBPCascadePath:  c.LBPCascadePath,
		DNN: detection.DNNOptions{
			ConfigPath:    c.FaceDNNConfigPath,
			ModelPath:     c.FaceDNNModelPath,
			ConfThreshold: c.FaceDNNConfidence,
		},
		PicoCascadePath: c.PicoCascadePath,
		RetinaFace: detection.RetinaFaceOptions{
			ModelPath: c.RetinaFaceModelPath,
		},
		OverlapThreshold: c.FaceOverlapThreshold,
		AssessQuality:    c.FaceQuality,
	}
}

// EncodeOptions returns the configured output encoding.
func (c *Config) EncodeOptions() media.EncodeOptions {
	f, _ := media.ParseFormat(c.OutputFormat)
	return media.EncodeOptions{Format: f, Quality: c.OutputQuality}
}
