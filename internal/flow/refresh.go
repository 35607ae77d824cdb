package flow

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docket-cli/internal/model"
	"github.com/sells-group/docket-cli/pkg/portal"
)

// Refresh runs the whole CNR scrape unattended: fresh session, captcha OCR,
// search, and result fetch. A weak OCR read or a rejected captcha abandons
// the session and starts over with a new one, up to the configured attempt
// budget. A no-record answer is terminal; retrying identical inputs cannot
// change it.
func (c *Controller) Refresh(ctx context.Context, cino string) (*model.Case, error) {
	log := c.log.With(zap.String("cino", cino))

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		record, err := c.refreshOnce(ctx, cino, log.With(zap.Int("attempt", attempt)))
		if err == nil {
			return record, nil
		}
		if eris.Is(err, portal.ErrNoRecordFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, eris.Wrapf(lastErr, "flow: refresh %s exhausted %d attempts", cino, c.opts.MaxAttempts)
}

func (c *Controller) refreshOnce(ctx context.Context, cino string, log *zap.Logger) (*model.Case, error) {
	sessionID, err := c.Start(ctx, "cnr", map[string]string{"cino": cino})
	if err != nil {
		log.Warn("refresh bootstrap failed", zap.Error(err))
		return nil, err
	}
	defer func() {
		if err := c.Delete(context.WithoutCancel(ctx), sessionID); err != nil {
			log.Debug("session cleanup failed", zap.Error(err))
		}
	}()

	img, err := c.CaptchaImage(ctx, sessionID)
	if err != nil {
		log.Warn("refresh captcha fetch failed", zap.Error(err))
		return nil, err
	}

	code, err := c.solver.Solve(ctx, img)
	if err != nil {
		log.Warn("ocr failed", zap.Error(err))
		return nil, err
	}
	if len(code) < c.opts.OCRMinLength {
		log.Debug("ocr read too short", zap.Int("length", len(code)))
		return nil, eris.Errorf("flow: ocr read too short (%d chars)", len(code))
	}

	if err := c.SubmitCaptcha(ctx, sessionID, code); err != nil {
		if eris.Is(err, portal.ErrInvalidCaptcha) {
			log.Debug("captcha rejected")
		} else {
			log.Warn("refresh search failed", zap.Error(err))
		}
		return nil, err
	}

	res, err := c.FetchResults(ctx, sessionID)
	if err != nil {
		log.Warn("refresh result fetch failed", zap.Error(err))
		return nil, err
	}
	return res.Case, nil
}
