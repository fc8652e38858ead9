package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const multipartMemory = 32 << 20

var (
	errMissingImage = errors.New("no image supplied; send a multipart 'image' file or a base64 'image' field")
	errNotAnImage   = errors.New("uploaded data is not an image")
)

// EnhanceOptions are the non-pipeline request fields.
type EnhanceOptions struct {
	Format  string `json:"format" validate:"omitempty,image_format"`
	Quality int    `json:"quality" validate:"omitempty,min=1,max=100"`
	Metrics *bool  `json:"metrics"`
}

// upload is a parsed enhance request body.
type upload struct {
	Data     []byte
	Filename string
	MIME     string
	Params   json.RawMessage
	Options  EnhanceOptions
}

type jsonUpload struct {
	Image    string          `json:"image"`
	Filename string          `json:"filename"`
	Params   json.RawMessage `json:"params"`
	EnhanceOptions
}

// readUpload accepts multipart/form-data (file field "image", optional
// "params" JSON, "format", "quality", "metrics") or a JSON body whose
// "image" field is a base64 string or data URL.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		up  *upload
		err error
	)
	switch mediaType {
	case "application/json":
		up, err = readJSONUpload(r)
	default:
		up, err = readMultipartUpload(r)
	}
	if err != nil {
		return nil, err
	}
	if len(up.Data) == 0 {
		return nil, errMissingImage
	}

	detected := mimetype.Detect(up.Data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return nil, fmt.Errorf("%w (detected %s)", errNotAnImage, detected.String())
	}
	up.MIME = detected.String()
	return up, nil
}

func readMultipartUpload(r *http.Request) (*upload, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	up := &upload{}

	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		up.Data, err = io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("read uploaded image: %w", err)
		}
		up.Filename = header.Filename
	case errors.Is(err, http.ErrMissingFile):
		// some clients post the data URL as a plain field
		if encoded := r.FormValue("image"); encoded != "" {
			if up.Data, err = decodeDataURL(encoded); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("read uploaded image: %w", err)
	}

	if p := strings.TrimSpace(r.FormValue("params")); p != "" {
		up.Params = json.RawMessage(p)
	}
	up.Options.Format = strings.TrimSpace(r.FormValue("format"))
	if q := strings.TrimSpace(r.FormValue("quality")); q != "" {
		if up.Options.Quality, err = strconv.Atoi(q); err != nil {
			return nil, fmt.Errorf("invalid quality %q", q)
		}
	}
	if m := strings.TrimSpace(r.FormValue("metrics")); m != "" {
		v, err := strconv.ParseBool(m)
		if err != nil {
			return nil, fmt.Errorf("invalid metrics flag %q", m)
		}
		up.Options.Metrics = &v
	}
	return up, nil
}

func readJSONUpload(r *http.Request) (*upload, error) {
	var body jsonUpload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	up := &upload{Filename: body.Filename, Params: body.Params, Options: body.EnhanceOptions}
	if body.Image != "" {
		data, err := decodeDataURL(body.Image)
		if err != nil {
			return nil, err
		}
		up.Data = data
	}
	return up, nil
}

// decodeDataURL accepts "data:<mime>;base64,<payload>" or bare base64.
func decodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 || !strings.HasSuffix(s[:comma], ";base64") {
			return nil, fmt.Errorf("invalid data URL: expected ';base64,' payload")
		}
		s = s[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	return data, nil
}

func dataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// writeUploadError maps readUpload errors onto the error envelope.
func writeUploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		WriteAPIError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	case errors.Is(err, errMissingImage):
		WriteAPIError(w, http.StatusBadRequest, CodeMissingImage, err.Error())
	case errors.Is(err, errNotAnImage):
		WriteAPIError(w, http.StatusUnsupportedMediaType, CodeUnsupportedMedia, err.Error())
	default:
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	}
}
