package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"surat/internal/docx"
	"surat/internal/domain"
	"surat/internal/events"
	"surat/internal/letter"
)

const DocxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

const fallbackFilename = "Dokumen"

// Document is a rendered letter ready for download.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Generate renders the letter for a request. Only the owner and
// administrators may download it.
func (e Engine) Generate(ctx context.Context, id string, caller Caller) (Document, error) {
	req, members, err := e.Get(ctx, id, caller)
	if err != nil {
		return Document{}, err
	}
	body, err := e.Render(ctx, req, members)
	if err != nil {
		return Document{}, err
	}
	doc := Document{
		Filename:    Filename(req.LeaderName),
		ContentType: DocxContentType,
		Body:        body,
	}
	if err := e.eventWriter().Append(ctx, nil, events.DocumentGenerated, entityRequest, id, caller.ID, events.EventPayload{
		"template_key": req.TemplateKey,
		"filename":     doc.Filename,
	}); err != nil {
		e.logger().Warn("record document event failed", zap.String("request_id", id), zap.Error(err))
	}
	return doc, nil
}

// Render fetches the template of req and fills it with the request data.
func (e Engine) Render(ctx context.Context, req domain.Request, members []domain.Member) ([]byte, error) {
	tpl, err := e.fetchTemplate(ctx, req.TemplateKey)
	if err != nil {
		return nil, err
	}
	mapper := e.Mapper
	loc := e.location()
	mapper.Now = func() time.Time { return e.now().In(loc) }
	out, err := e.Renderer.Render(tpl, mapper.Build(req, members))
	if err != nil {
		var rerr *docx.RenderError
		if errors.As(err, &rerr) {
			e.logger().Warn("template render failed",
				zap.String("request_id", req.ID),
				zap.String("template_key", req.TemplateKey),
				zap.Strings("details", rerr.Details),
			)
		}
		return nil, err
	}
	return out, nil
}

func (e Engine) fetchTemplate(ctx context.Context, key string) ([]byte, error) {
	tpl, ok := letter.Lookup(key)
	if !ok {
		return nil, docx.FetchFailed(fmt.Errorf("unknown template %q", key))
	}
	if e.Templates == nil {
		return nil, docx.FetchFailed(errors.New("template source not configured"))
	}
	fetchCtx, cancel := context.WithTimeout(ctx, e.templateTimeout())
	defer cancel()
	body, err := e.Templates.Fetch(fetchCtx, tpl.File())
	if err != nil {
		e.logger().Warn("template fetch failed", zap.String("template", tpl.File()), zap.Error(err))
		return nil, docx.FetchFailed(err)
	}
	return body, nil
}

// Filename names the download after the leader: "Surat-<name>.docx" with
// every character outside [A-Za-z0-9] removed.
func Filename(leaderName string) string {
	return "Surat-" + sanitizeFilename(leaderName) + ".docx"
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return fallbackFilename
	}
	return b.String()
}
