package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"

	"github.com/yungbote/teachpack-backend/internal/logger"
)

// CoverService renders the title card PNG attached to each group's slide deck
// and the downscaled thumbnail attached to its video. Output lands under
// MEDIA_DIR and is served back at MEDIA_BASE_URL.
type CoverService interface {
	RenderCover(title, groupName, masteryLevel string) (bytes.Buffer, error)
	// SaveCover also returns the encoded PNG so SaveThumbnail can downscale
	// it without a second render.
	SaveCover(jobID uuid.UUID, groupID, title, groupName, masteryLevel string) (string, []byte, error)
	SaveThumbnail(jobID uuid.UUID, groupID string, cover []byte) (string, error)
}

type coverService struct {
	log      *logger.Logger
	mediaDir string
	baseURL  string

	titleFace    font.Face
	subtitleFace font.Face
}

var coverPalette = map[string]color.NRGBA{
	"low":      {R: 0x2F, G: 0x5D, B: 0x8C, A: 0xFF},
	"medium":   {R: 0x2E, G: 0x7D, B: 0x5B, A: 0xFF},
	"high":     {R: 0x8C, G: 0x5A, B: 0x2F, A: 0xFF},
	"advanced": {R: 0x6B, G: 0x2F, B: 0x8C, A: 0xFF},
}

func NewCoverService(log *logger.Logger) (CoverService, error) {
	serviceLog := log.With("service", "CoverService")

	mediaDir := strings.TrimSpace(os.Getenv("MEDIA_DIR"))
	if mediaDir == "" {
		return nil, fmt.Errorf("Env var MEDIA_DIR is empty")
	}
	baseURL := strings.TrimSpace(os.Getenv("MEDIA_BASE_URL"))
	if baseURL == "" {
		baseURL = "/media"
	}

	fontPath := strings.TrimSpace(os.Getenv("COVER_FONT"))
	if fontPath == "" {
		return nil, fmt.Errorf("Env var COVER_FONT is empty")
	}
	serviceLog.Info("Loading cover font", "font", fontPath)

	titleFace, err := loadCoverFontFace(fontPath, 64)
	if err != nil {
		return nil, fmt.Errorf("could not load cover font: %w", err)
	}
	subtitleFace, err := loadCoverFontFace(fontPath, 32)
	if err != nil {
		return nil, fmt.Errorf("could not load cover font: %w", err)
	}

	return &coverService{
		log:          serviceLog,
		mediaDir:     mediaDir,
		baseURL:      strings.TrimRight(baseURL, "/"),
		titleFace:    titleFace,
		subtitleFace: subtitleFace,
	}, nil
}

func (cs *coverService) RenderCover(title, groupName, masteryLevel string) (bytes.Buffer, error) {
	const width, height = 1280, 720

	dc := gg.NewContext(width, height)

	base, ok := coverPalette[strings.ToLower(strings.TrimSpace(masteryLevel))]
	if !ok {
		base = coverPalette["medium"]
	}
	dc.SetColor(base)
	dc.DrawRectangle(0, 0, width, height)
	dc.Fill()

	// darker footer band for the group label
	dc.SetRGBA255(0, 0, 0, 60)
	dc.DrawRectangle(0, height-120, width, 120)
	dc.Fill()

	dc.SetColor(color.White)
	dc.SetFontFace(cs.titleFace)
	dc.DrawStringWrapped(title, width/2, height/2-40, 0.5, 0.5, width-160, 1.4, gg.AlignCenter)

	dc.SetFontFace(cs.subtitleFace)
	tw, th := dc.MeasureString(groupName)
	dc.DrawString(groupName, (width-tw)/2, float64(height-60)+th/2)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return buf, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf, nil
}

func (cs *coverService) SaveCover(jobID uuid.UUID, groupID, title, groupName, masteryLevel string) (string, []byte, error) {
	buf, err := cs.RenderCover(title, groupName, masteryLevel)
	if err != nil {
		return "", nil, err
	}
	rel := filepath.Join("covers", jobID.String(), groupID+".png")
	if err := cs.writeMedia(rel, buf.Bytes()); err != nil {
		return "", nil, err
	}
	return cs.baseURL + "/" + filepath.ToSlash(rel), buf.Bytes(), nil
}

// SaveThumbnail downscales an already-rendered cover to 320x180.
func (cs *coverService) SaveThumbnail(jobID uuid.UUID, groupID string, cover []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(cover))
	if err != nil {
		return "", fmt.Errorf("decode cover: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, 320, 180))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	dc := gg.NewContextForRGBA(dst)
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}

	rel := filepath.Join("thumbnails", jobID.String(), groupID+".png")
	if err := cs.writeMedia(rel, buf.Bytes()); err != nil {
		return "", err
	}
	return cs.baseURL + "/" + filepath.ToSlash(rel), nil
}

func (cs *coverService) writeMedia(rel string, data []byte) error {
	full := filepath.Join(cs.mediaDir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("media dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write media: %w", err)
	}
	return nil
}

func loadCoverFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}
