package npid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/antzucaro/matchr"
)

// Domain facade. each method encodes a typed request, runs it through
// the session layer (which owns tokens, cookies and the single
// recovery retry) and decodes the outcome. callers never see form
// field names, csrf tokens or response shape quirks.

// call runs a request and converts the final classification into an
// error. by the time this returns a RawOutcome, the outcome is safe to
// hand to a decoder.
func (c *Client) call(ctx context.Context, req FormRequest) (RawOutcome, error) {
	out, err := c.Do(ctx, req)
	if err != nil {
		return RawOutcome{}, err
	}
	switch Classify(out, req.Expect) {
	case VerdictSessionExpired:
		// the retry already happened inside Do, a second expiry means
		// the session is truly gone
		return RawOutcome{}, fmt.Errorf("%w: session expired and recovery failed", ErrAuthentication)
	case VerdictUpstreamError:
		return RawOutcome{}, upstreamError(out)
	}
	return out, nil
}

func (c *Client) SubmitVideo(ctx context.Context, req SubmitVideoRequest) (SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "client:SubmitVideo")
	defer span.End()

	form, err := encodeSubmitVideo(req)
	if err != nil {
		return SubmitResult{}, err
	}
	out, err := c.call(ctx, form)
	if err != nil {
		return SubmitResult{}, err
	}
	result, err := decodeSubmitResult(out)
	if err != nil {
		return SubmitResult{}, err
	}
	slog.InfoContext(ctx, "submitted video",
		"athlete", req.AthleteID, "type", req.VideoType)
	return result, nil
}

func (c *Client) UpdateStage(ctx context.Context, videoMsgID string, stage Stage) error {
	ctx, span := tracer.Start(ctx, "client:UpdateStage")
	defer span.End()

	form, err := encodeUpdateStage(videoMsgID, stage)
	if err != nil {
		return err
	}
	out, err := c.call(ctx, form)
	if err != nil {
		return err
	}
	_, err = decodeAck(out)
	return err
}

func (c *Client) UpdateStatus(ctx context.Context, videoMsgID string, status Status) error {
	ctx, span := tracer.Start(ctx, "client:UpdateStatus")
	defer span.End()

	form, err := encodeUpdateStatus(videoMsgID, status)
	if err != nil {
		return err
	}
	out, err := c.call(ctx, form)
	if err != nil {
		return err
	}
	_, err = decodeAck(out)
	return err
}

// UpdateDueDate sets the editor due date. dueDate is MM/DD/YYYY, the
// only format the legacy datepicker submits.
func (c *Client) UpdateDueDate(ctx context.Context, videoMsgID, dueDate string) error {
	ctx, span := tracer.Start(ctx, "client:UpdateDueDate")
	defer span.End()

	form, err := encodeUpdateDueDate(videoMsgID, dueDate)
	if err != nil {
		return err
	}
	out, err := c.call(ctx, form)
	if err != nil {
		return err
	}
	_, err = decodeAck(out)
	return err
}

func (c *Client) FetchSeasons(ctx context.Context, req FetchSeasonsRequest) ([]Season, error) {
	ctx, span := tracer.Start(ctx, "client:FetchSeasons")
	defer span.End()

	form, err := encodeFetchSeasons(req)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, form)
	if err != nil {
		return nil, err
	}
	return decodeSeasons(out)
}

func (c *Client) SearchVideoProgress(ctx context.Context, filter ProgressFilter) ([]ProgressEntry, error) {
	ctx, span := tracer.Start(ctx, "client:SearchVideoProgress")
	defer span.End()

	out, err := c.call(ctx, encodeSearchVideoProgress(filter))
	if err != nil {
		return nil, err
	}
	return decodeProgress(out)
}

func (c *Client) AssignThread(ctx context.Context, req AssignThreadRequest) error {
	ctx, span := tracer.Start(ctx, "client:AssignThread")
	defer span.End()

	form, err := encodeAssignThread(req)
	if err != nil {
		return err
	}
	out, err := c.call(ctx, form)
	if err != nil {
		return err
	}
	_, err = decodeAck(out)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "assigned thread",
		"message", req.MessageID, "owner", req.OwnerID)
	return nil
}

func (c *Client) FetchAssignmentModal(ctx context.Context, messageID, itemCode string) (AssignmentModal, error) {
	ctx, span := tracer.Start(ctx, "client:FetchAssignmentModal")
	defer span.End()

	out, err := c.call(ctx, encodeFetchAssignmentModal(messageID, itemCode))
	if err != nil {
		return AssignmentModal{}, err
	}
	return decodeAssignmentModal(out)
}

// AssignmentDefaults returns the stage/status the dashboard would
// preselect for a contact.
func (c *Client) AssignmentDefaults(ctx context.Context, contactID string) (AssignmentDefaults, error) {
	ctx, span := tracer.Start(ctx, "client:AssignmentDefaults")
	defer span.End()

	out, err := c.call(ctx, encodeAssignmentDefaults(contactID))
	if err != nil {
		return AssignmentDefaults{}, err
	}
	return decodeAssignmentDefaults(out)
}

// SearchContacts queries the contact list and orders results by name
// similarity to the query, best match first. searchFor is "athlete" or
// "parent", defaulting to athlete.
func (c *Client) SearchContacts(ctx context.Context, query, searchFor string) ([]Contact, error) {
	ctx, span := tracer.Start(ctx, "client:SearchContacts")
	defer span.End()

	out, err := c.call(ctx, encodeSearchContacts(query, searchFor))
	if err != nil {
		return nil, err
	}
	contacts, err := decodeContacts(out)
	if err != nil {
		return nil, err
	}
	rankContacts(query, contacts)
	return contacts, nil
}

// rankContacts sorts in place by jaro-winkler similarity against the
// query. the upstream returns rows in database order, which is useless
// for picking the right person.
func rankContacts(query string, contacts []Contact) {
	scores := make([]float64, len(contacts))
	for i, contact := range contacts {
		scores[i] = matchr.JaroWinkler(strings.ToLower(query), strings.ToLower(contact.Name), false)
	}
	// insertion sort, result sets are a handful of rows
	for i := 1; i < len(contacts); i++ {
		for j := i; j > 0 && scores[j] > scores[j-1]; j-- {
			scores[j], scores[j-1] = scores[j-1], scores[j]
			contacts[j], contacts[j-1] = contacts[j-1], contacts[j]
		}
	}
}

func (c *Client) FetchEmailTemplates(ctx context.Context, contactID string) ([]EmailTemplate, error) {
	ctx, span := tracer.Start(ctx, "client:FetchEmailTemplates")
	defer span.End()

	out, err := c.call(ctx, encodeFetchEmailTemplates(contactID))
	if err != nil {
		return nil, err
	}
	return decodeEmailTemplates(out)
}

// FetchTemplateData resolves a template into the sender, subject and
// body the dashboard would prefill for the athlete.
func (c *Client) FetchTemplateData(ctx context.Context, templateID, athleteID string) (TemplateData, error) {
	ctx, span := tracer.Start(ctx, "client:FetchTemplateData")
	defer span.End()

	form, err := encodeFetchTemplateData(templateID, athleteID)
	if err != nil {
		return TemplateData{}, err
	}
	out, err := c.call(ctx, form)
	if err != nil {
		return TemplateData{}, err
	}
	return decodeTemplateData(out)
}

// SendTemplatedEmail sends a notification email to an athlete. sender,
// subject and message fall back to the template's prefill, fields set
// on the request win.
func (c *Client) SendTemplatedEmail(ctx context.Context, req SendEmailRequest) error {
	ctx, span := tracer.Start(ctx, "client:SendTemplatedEmail")
	defer span.End()

	if req.AthleteID == "" {
		return &ValidationError{Field: "AthleteID", Reason: "must not be empty"}
	}
	data, err := c.FetchTemplateData(ctx, req.TemplateID, req.AthleteID)
	if err != nil {
		return err
	}
	if req.From == "" {
		req.From = data.SenderName
	}
	if req.FromEmail == "" {
		req.FromEmail = data.SenderEmail
	}
	if req.Subject == "" {
		req.Subject = data.Subject
	}
	if req.Message == "" {
		req.Message = data.Body
	}

	form, err := encodeSendEmail(req)
	if err != nil {
		return err
	}
	out, err := c.call(ctx, form)
	if err != nil {
		return err
	}
	if err := decodeEmailSent(out); err != nil {
		return err
	}
	slog.InfoContext(ctx, "sent templated email",
		"athlete", req.AthleteID, "template", req.TemplateID)
	return nil
}
