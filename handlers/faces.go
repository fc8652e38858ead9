package handlers

import (
	"fmt"
	"image"
	"image/color"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/camden-git/faceenhancer/detection"
	"github.com/camden-git/faceenhancer/enhance"
	"github.com/camden-git/faceenhancer/media"
)

// FaceLocator is satisfied by *detection.Locator.
type FaceLocator interface {
	Locate(img gocv.Mat) []detection.FaceRegion
	Backends() []string
}

type FaceHandler struct {
	Locator        FaceLocator
	MaxUploadBytes int64
	Log            logrus.FieldLogger
}

type FacesResponse struct {
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	Backends []string   `json:"backends"`
	Count    int        `json:"count"`
	Faces    []FaceJSON `json:"faces"`
}

// DetectFaces runs face location alone on an upload. With ?annotate=true the
// response is a JPEG with the boxes drawn instead of JSON.
func (fh *FaceHandler) DetectFaces(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(w, r, fh.MaxUploadBytes)
	if err != nil {
		writeUploadError(w, err)
		return
	}

	decoded, err := media.Decode(up.Data)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidImage, err.Error())
		return
	}
	defer decoded.Close()

	img, err := enhance.Preprocess(decoded)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidImage, err.Error())
		return
	}
	defer img.Close()

	var faces []detection.FaceRegion
	if fh.Locator != nil {
		faces = fh.Locator.Locate(img)
	}
	fh.Log.WithFields(logrus.Fields{"faces": len(faces), "request_id": requestID(r)}).Debug("located faces")

	if annotate, _ := strconv.ParseBool(r.URL.Query().Get("annotate")); annotate {
		fh.writeAnnotated(w, img, faces)
		return
	}

	var backends []string
	if fh.Locator != nil {
		backends = fh.Locator.Backends()
	}
	writeJSON(w, http.StatusOK, FacesResponse{
		Width:    img.Cols(),
		Height:   img.Rows(),
		Backends: backends,
		Count:    len(faces),
		Faces:    facesJSON(faces),
	})
}

func (fh *FaceHandler) writeAnnotated(w http.ResponseWriter, img gocv.Mat, faces []detection.FaceRegion) {
	canvas := img.Clone()
	defer canvas.Close()
	if canvas.Channels() == 1 {
		gocv.CvtColor(canvas, &canvas, gocv.ColorGrayToBGR)
	}

	blue := color.RGBA{0, 0, 255, 0}
	thickness := 2
	for _, face := range faces {
		gocv.Rectangle(&canvas, face.Rect, blue, thickness)
		label := face.Source
		if face.Confidence != nil {
			label = fmt.Sprintf("%s %.2f", face.Source, *face.Confidence)
		}
		gocv.PutText(&canvas, label, image.Pt(face.Rect.Min.X, max(face.Rect.Min.Y-5, 10)), gocv.FontHersheySimplex, 0.5, blue, 1)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, canvas)
	if err != nil {
		fh.Log.WithError(err).Error("failed to encode annotated image")
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to encode image")
		return
	}
	defer buf.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("X-Faces-Detected", itoa(len(faces)))
	if _, err := w.Write(buf.GetBytes()); err != nil {
		fh.Log.WithError(err).Debug("failed writing annotated image")
	}
}
