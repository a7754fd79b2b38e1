package app

import (
	"context"
	"html/template"
	"strings"

	"pathwise/internal/util"
	"pathwise/pkg/render"
)

var deliveryEmailTmpl = template.Must(template.New("delivery").Parse(`<!DOCTYPE html>
<html><body style="font-family: Georgia, serif; color: #1f2430;">
<h2>{{if .Name}}{{.Name}}, your{{else}}Your{{end}} Serious Plan is ready</h2>
<p>Your personalized plan has been generated: the documents, your coach's
closing note, and everything you worked through in the modules.</p>
<p><a href="{{.Link}}">Open your plan</a></p>
<p>The plan recommends a {{.Horizon}} timeframe. Start with the action plan.</p>
</body></html>
`))

// notifyPlanReady sends the delivery email once the bundle is generated.
// Best effort: a mail failure is logged and the plan stays ready.
func (a *App) notifyPlanReady(ctx context.Context, planID string) {
	if a.mailer == nil {
		return
	}
	logger := util.LoggerFromContext(ctx)
	plan, ok, err := a.store.GetPlan(planID)
	if err != nil || !ok {
		logger.Warn("delivery email skipped, plan unavailable", "plan_id", planID, "err", err)
		return
	}
	user, ok, err := a.store.GetUserByID(plan.UserID)
	if err != nil || !ok || user.Email == "" {
		logger.Warn("delivery email skipped, no recipient", "plan_id", planID, "user_id", plan.UserID, "err", err)
		return
	}

	link := strings.TrimRight(a.cfg.AppBaseURL, "/") + "/plan/" + planID
	var sb strings.Builder
	err = deliveryEmailTmpl.Execute(&sb, map[string]string{
		"Name":    firstName(plan.ClientName),
		"Link":    link,
		"Horizon": render.HumanHorizon(string(plan.Horizon)),
	})
	if err != nil {
		logger.Warn("delivery email template failed", "plan_id", planID, "err", err)
		return
	}
	subject := "Your Serious Plan is ready"
	if err := a.mailer.Send(ctx, user.Email, subject, sb.String()); err != nil {
		logger.Warn("delivery email failed", "plan_id", planID, "err", err)
		return
	}
	logger.Info("delivery email sent", "plan_id", planID, "user_id", plan.UserID)
}

func firstName(full string) string {
	full = strings.TrimSpace(full)
	if full == "" {
		return ""
	}
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}
