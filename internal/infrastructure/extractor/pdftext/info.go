package pdftext

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
)

var configDirOnce sync.Once

// pdfcpu writes a config directory under the user's home by default.
func disablePdfcpuConfigDir() {
	configDirOnce.Do(api.DisableConfigDir)
}

// readInfo pulls the document info dictionary through pdfcpu. pdfcpu fills
// the XRefTable info fields during validation.
func readInfo(raw []byte) (meta domain.DocumentMetadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(raw), conf)
	if err != nil {
		return domain.DocumentMetadata{}, fmt.Errorf("pdfcpu read: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return domain.DocumentMetadata{}, fmt.Errorf("pdfcpu validate: %w", err)
	}

	xt := ctx.XRefTable
	return domain.DocumentMetadata{
		Title:        strings.TrimSpace(xt.Title),
		Author:       strings.TrimSpace(xt.Author),
		Subject:      strings.TrimSpace(xt.Subject),
		Creator:      strings.TrimSpace(xt.Creator),
		CreationDate: strings.TrimSpace(xt.CreationDate),
	}, nil
}
