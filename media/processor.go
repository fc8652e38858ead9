package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Output is an encoded enhanced image and, when stored, its relative path.
type Output struct {
	Data   []byte
	Format Format
	Path   string
}

// Processor encodes enhanced images and saves them through a Store.
type Processor struct {
	store Store
	log   logrus.FieldLogger
}

// NewProcessor returns a Processor. A nil store means outputs are encoded
// but never persisted.
func NewProcessor(store Store, log logrus.FieldLogger) *Processor {
	return &Processor{store: store, log: log.WithField("component", "processor")}
}

// Publish encodes img and, if persist is set and a store is configured,
// saves it under AssetTypeEnhanced/dirHint. An empty filename gets a UUID
// name; a filename with a different extension is given the output one.
func (p *Processor) Publish(ctx context.Context, img gocv.Mat, dirHint, filename string, opts EncodeOptions, persist bool) (*Output, error) {
	if opts.Format == "" {
		opts.Format = FormatJPEG
	}
	data, err := Encode(img, opts)
	if err != nil {
		return nil, err
	}
	out := &Output{Data: data, Format: opts.Format}
	if !persist || p.store == nil {
		return out, nil
	}

	if filename == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, fmt.Errorf("failed to generate UUID for output: %w", err)
		}
		filename = id.String()
	}
	filename = withExtension(filename, opts.Format)

	saved, err := p.store.Save(ctx, AssetTypeEnhanced, dirHint, filename, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to save output via store: %w", err)
	}
	out.Path = saved
	p.log.WithField("path", saved).Debug("saved enhanced image")
	return out, nil
}

func withExtension(name string, f Format) string {
	if got, err := FormatForPath(name); err == nil && got == f {
		return name
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name + f.Extension()
}
