// Copyright 2025 Justifai
//
// Augmentor implements C8 on top of pdfcpu: attach the original PDF
// and verification bundle, stamp the QR image onto the target page,
// add the marker annotation, and rewrite Producer/Creator/dates.
package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/justifai/certify/pkg/errkind"
)

// Augmentor produces the QR-embedded, attachment-bearing certificate PDF.
type Augmentor interface {
	Augment(in AugmentInput) ([]byte, error)
}

// PdfcpuAugmentor is the pdfcpu-backed Augmentor.
type PdfcpuAugmentor struct {
	conf *model.Configuration
}

var _ Augmentor = (*PdfcpuAugmentor)(nil)

// NewAugmentor returns a pdfcpu-backed Augmentor using default
// validation relaxation suitable for third-party-generated PDFs.
func NewAugmentor() *PdfcpuAugmentor {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PdfcpuAugmentor{conf: conf}
}

// Augment runs the augmentation pipeline in memory: attach, stamp,
// mark, then rewrite metadata, each step reading the previous step's
// output.
func (a *PdfcpuAugmentor) Augment(in AugmentInput) ([]byte, error) {
	withAttachments, err := a.attach(in.Original, in.VerificationBundle)
	if err != nil {
		return nil, err
	}

	withQR, err := a.stampQR(withAttachments, in.QRImagePNG, in.Placement)
	if err != nil {
		return nil, err
	}

	withMarker, err := a.addMarkerAnnotation(withQR, in.Placement.PageIndex)
	if err != nil {
		return nil, err
	}

	return a.rewriteMetadata(withMarker, in.IssuerName, in.Now)
}

func (a *PdfcpuAugmentor) attach(original []byte, vdJSON []byte) ([]byte, error) {
	attachments := []model.Attachment{
		{Reader: bytes.NewReader(original), ID: OriginalPDFName, Desc: "original document bytes"},
		{Reader: bytes.NewReader(vdJSON), ID: VerificationBundleName, Desc: "verification bundle"},
	}

	var out bytes.Buffer
	if err := api.AddAttachments(bytes.NewReader(original), &out, attachments, false, a.conf); err != nil {
		return nil, errkind.Wrap(errkind.PDF, err, "attach original PDF and verification bundle")
	}
	return out.Bytes(), nil
}

func (a *PdfcpuAugmentor) stampQR(pdfBytes []byte, qrPNG []byte, placement Placement) ([]byte, error) {
	pt := CSSPixelsToPoints(placement)
	desc := fmt.Sprintf("pos:bl, offset:%.2f %.2f, scale:%.2f abs, rot:0", pt.X, pt.Y, pt.Width)

	wm, err := api.ImageWatermarkForReader(bytes.NewReader(qrPNG), desc, true, false, a.conf)
	if err != nil {
		return nil, errkind.Wrap(errkind.PDF, err, "build QR image stamp")
	}

	var out bytes.Buffer
	pages := []string{fmt.Sprintf("%d", pt.PageIndex+1)}
	if err := api.AddImageWatermarks(bytes.NewReader(pdfBytes), &out, pages, wm, a.conf); err != nil {
		return nil, errkind.Wrap(errkind.PDF, err, "stamp QR image onto page")
	}
	return out.Bytes(), nil
}

// addMarkerAnnotation adds a 1x1 invisible link annotation named
// JustifaiQR to the target page, used as a detectable marker of
// augmentation without altering visible content.
func (a *PdfcpuAugmentor) addMarkerAnnotation(pdfBytes []byte, pageIndex int) ([]byte, error) {
	ann := model.NewLinkAnnotation(
		types.RectForDim(1, 1),
		nil, nil, "", MarkerAnnotationName, model.AnnNoView, nil,
	)

	var out bytes.Buffer
	pages := map[string][]model.AnnotationRenderer{fmt.Sprintf("%d", pageIndex+1): {ann}}
	if err := api.AddAnnotationsMap(bytes.NewReader(pdfBytes), &out, pages, a.conf); err != nil {
		return nil, errkind.Wrap(errkind.PDF, err, "add marker annotation")
	}
	return out.Bytes(), nil
}

// rewriteMetadata overwrites the trailer Info dictionary's
// Producer/Creator to the issuer name and CreationDate/ModDate to now.
func (a *PdfcpuAugmentor) rewriteMetadata(pdfBytes []byte, issuerName string, now time.Time) ([]byte, error) {
	ctx, err := api.ReadContext(bytes.NewReader(pdfBytes), a.conf)
	if err != nil {
		return nil, errkind.Wrap(errkind.PDF, err, "read context for metadata rewrite")
	}

	dateStr := types.DateString(now)
	ctx.XRefTable.Producer = issuerName
	ctx.XRefTable.Creator = issuerName
	ctx.XRefTable.CreationDate = dateStr
	ctx.XRefTable.ModDate = dateStr

	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return nil, errkind.Wrap(errkind.PDF, err, "write context after metadata rewrite")
	}
	return out.Bytes(), nil
}
