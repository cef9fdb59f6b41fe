package npid

import (
	"encoding/json"
	"strings"

	"npid-bridge/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// The response half of the translator. every decoder is a pure
// function of the outcome body, safe to call any number of times, and
// fails closed: a body that matches none of the known shapes becomes
// an UpstreamError carrying a bounded excerpt, never a zero-value
// success.

// Ack is the result of a mutating call whose success signal is the
// http status rather than the body.
type Ack struct {
	Message string
}

// decodeAck handles the empty-200 family (stage, status, due date,
// assignment). a 200 with an empty body is success. a JSON body with
// an explicit success flag is honored either way.
func decodeAck(out RawOutcome) (Ack, error) {
	body := strings.TrimSpace(string(out.Body))
	if body == "" {
		return Ack{}, nil
	}

	var envelope struct {
		Success any    `json:"success"`
		Message string `json:"message"`
	}
	err := json.Unmarshal([]byte(body), &envelope)
	if err != nil {
		return Ack{}, upstreamError(out)
	}
	if !truthy(envelope.Success) {
		return Ack{}, &UpstreamError{Code: out.StatusCode, Excerpt: excerpt(out.Body)}
	}
	return Ack{Message: envelope.Message}, nil
}

// the upstream is inconsistent about booleans: sometimes true,
// sometimes "true". absent counts as success for ack bodies since the
// status code already said 200.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return t
	case string:
		return t == "true"
	}
	return false
}

type SubmitResult struct {
	Message string
}

// decodeSubmitResult digs the actual result out of the doubly-encoded
// submit response:
//
//	{"status":"ok","data":{"success":true,"response":"\r\n{\"success\":\"false\",...}"}}
//
// the response field is a JSON document serialized into a string, with
// leading whitespace, and its success flag is the authoritative one.
func decodeSubmitResult(out RawOutcome) (SubmitResult, error) {
	var outer struct {
		Success any    `json:"success"`
		Message string `json:"message"`
		Data    *struct {
			Success  any    `json:"success"`
			Response string `json:"response"`
		} `json:"data"`
	}
	err := json.Unmarshal(out.Body, &outer)
	if err != nil {
		return SubmitResult{}, upstreamError(out)
	}

	if outer.Data != nil && outer.Data.Response != "" {
		inner := strings.TrimSpace(outer.Data.Response)
		var nested struct {
			Success any    `json:"success"`
			Message string `json:"message"`
		}
		err := json.Unmarshal([]byte(inner), &nested)
		if err != nil {
			// inner wasn't JSON, fall back to substring matching the
			// way the dashboard's own frontend does
			lower := strings.ToLower(inner)
			if strings.Contains(lower, "success") && strings.Contains(lower, "true") {
				return SubmitResult{Message: inner}, nil
			}
			return SubmitResult{}, &UpstreamError{Code: out.StatusCode, Excerpt: excerpt([]byte(inner))}
		}
		if !truthyStrict(nested.Success) {
			return SubmitResult{}, &UpstreamError{Code: out.StatusCode, Excerpt: excerpt([]byte(nested.Message))}
		}
		return SubmitResult{Message: nested.Message}, nil
	}

	if !truthyStrict(outer.Success) {
		return SubmitResult{}, &UpstreamError{Code: out.StatusCode, Excerpt: excerpt(out.Body)}
	}
	return SubmitResult{Message: outer.Message}, nil
}

// like truthy but absent is failure, used where the flag is the only
// success signal.
func truthyStrict(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	}
	return false
}

type Season struct {
	// wire value in `level:id` form, e.g. "highschool:18249"
	Value string `json:"value"`
	Label string `json:"label"`
	// only populated by the JSON shape
	SeasonYears string `json:"season"`
	SchoolAdded string `json:"school_added"`
}

// decodeSeasons accepts both shapes the seasons endpoint produces: a
// JSON envelope with a data array, or a bare fragment of <option>
// tags. placeholder options with empty values are dropped.
func decodeSeasons(out RawOutcome) ([]Season, error) {
	var envelope struct {
		Status string   `json:"status"`
		Data   []Season `json:"data"`
	}
	err := json.Unmarshal(out.Body, &envelope)
	if err == nil {
		if envelope.Status != "ok" {
			return nil, upstreamError(out)
		}
		return envelope.Data, nil
	}

	doc, err := htmlutil.ParseDocument(out.Body)
	if err != nil {
		return nil, upstreamError(out)
	}
	options := htmlutil.SelectOptions(doc.Find("body"))
	if len(options) == 0 {
		return nil, upstreamError(out)
	}
	seasons := make([]Season, 0, len(options))
	for _, opt := range options {
		seasons = append(seasons, Season{Value: opt.Value, Label: opt.Label})
	}
	return seasons, nil
}

type ProgressEntry struct {
	VideoMsgID        string `json:"video_msg_id"`
	PlayerID          string `json:"player_id"`
	PlayerName        string `json:"player_name"`
	GradYear          string `json:"grad_year"`
	Sport             string `json:"sport"`
	State             string `json:"state"`
	HighSchool        string `json:"high_school"`
	PrimaryPosition   string `json:"primaryposition"`
	SecondaryPosition string `json:"secondaryposition"`
	ThirdPosition     string `json:"thirdposition"`
	Stage             string `json:"video_progress_stage"`
	Status            string `json:"video_progress_status"`
	Editor            string `json:"video_editor"`
	DueDate           string `json:"video_due_date"`
}

func decodeProgress(out RawOutcome) ([]ProgressEntry, error) {
	var entries []ProgressEntry
	err := json.Unmarshal(out.Body, &entries)
	if err != nil {
		return nil, upstreamError(out)
	}
	return entries, nil
}

type Contact struct {
	ContactID     string
	AthleteMainID string
	Name          string
	Sport         string
	GradYear      string
	State         string
	Ranking       string
}

// decodeContacts scrapes the contact search result table. each row
// carries its identifiers as attributes on an input.contactselected
// element and its display fields in fixed cell positions.
func decodeContacts(out RawOutcome) ([]Contact, error) {
	doc, err := htmlutil.ParseDocument(out.Body)
	if err != nil {
		return nil, upstreamError(out)
	}

	var contacts []Contact
	doc.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			// header row
			return
		}
		input := row.Find("input.contactselected").First()
		if input.Length() == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}
		contacts = append(contacts, Contact{
			ContactID:     input.AttrOr("contactid", ""),
			AthleteMainID: input.AttrOr("athlete_main_id", ""),
			Name:          input.AttrOr("contactname", ""),
			Ranking:       htmlutil.CleanText(cells.Eq(1).Text()),
			GradYear:      htmlutil.CleanText(cells.Eq(2).Text()),
			State:         htmlutil.CleanText(cells.Eq(3).Text()),
			Sport:         htmlutil.CleanText(cells.Eq(4).Text()),
		})
	})
	return contacts, nil
}

type AssignmentModal struct {
	FormToken     string
	Owners        []htmlutil.Option
	Stages        []htmlutil.Option
	Statuses      []htmlutil.Option
	ContactSearch string
	ContactTask   string
	AthleteMainID string
	MessageID     string
	ContactFor    string
}

// decodeAssignmentModal pulls everything the assignment form needs out
// of the modal page: the three dropdowns, the hidden identity inputs
// and the anti-forgery token.
func decodeAssignmentModal(out RawOutcome) (AssignmentModal, error) {
	doc, err := htmlutil.ParseDocument(out.Body)
	if err != nil {
		return AssignmentModal{}, upstreamError(out)
	}

	modal := AssignmentModal{
		FormToken:     htmlutil.InputValue(doc, "_token"),
		Owners:        htmlutil.SelectOptions(doc.Find(`select[name="videoscoutassignedto"]`)),
		Stages:        htmlutil.SelectOptions(doc.Find(`select[name="video_progress_stage"]`)),
		Statuses:      htmlutil.SelectOptions(doc.Find(`select[name="video_progress_status"]`)),
		ContactSearch: htmlutil.InputValue(doc, "contact"),
		ContactTask:   htmlutil.InputValue(doc, "contact_task"),
		AthleteMainID: htmlutil.InputValue(doc, "athlete_main_id"),
		MessageID:     htmlutil.InputValue(doc, "messageid"),
	}
	if modal.FormToken == "" {
		return AssignmentModal{}, upstreamError(out)
	}

	contactFor := doc.Find(`select[name="contactfor"] option[selected]`).AttrOr("value", "")
	if contactFor == "" {
		contactFor = "athlete"
	}
	modal.ContactFor = contactFor
	return modal, nil
}

type AssignmentDefaults struct {
	Stage  string `json:"stage"`
	Status string `json:"video_progress_status"`
}

func decodeAssignmentDefaults(out RawOutcome) (AssignmentDefaults, error) {
	if len(strings.TrimSpace(string(out.Body))) == 0 {
		return AssignmentDefaults{}, nil
	}
	var defaults AssignmentDefaults
	err := json.Unmarshal(out.Body, &defaults)
	if err != nil {
		return AssignmentDefaults{}, upstreamError(out)
	}
	return defaults, nil
}

type EmailTemplate struct {
	ID    string
	Label string
}

func decodeEmailTemplates(out RawOutcome) ([]EmailTemplate, error) {
	doc, err := htmlutil.ParseDocument(out.Body)
	if err != nil {
		return nil, upstreamError(out)
	}
	options := htmlutil.SelectOptions(doc.Find("body"))
	templates := make([]EmailTemplate, 0, len(options))
	for _, opt := range options {
		templates = append(templates, EmailTemplate{ID: opt.Value, Label: opt.Label})
	}
	return templates, nil
}

// TemplateData is the prefill the dashboard loads for an email
// template.
type TemplateData struct {
	SenderName  string `json:"sender_name"`
	SenderEmail string `json:"sender_email"`
	Subject     string `json:"templatesubject"`
	Body        string `json:"templatedescription"`
}

func decodeTemplateData(out RawOutcome) (TemplateData, error) {
	var data TemplateData
	if err := json.Unmarshal(out.Body, &data); err != nil {
		return TemplateData{}, upstreamError(out)
	}
	return data, nil
}

// the notification endpoint answers with a page, the only success
// signal is an "Email Sent" banner in it.
func decodeEmailSent(out RawOutcome) error {
	if strings.Contains(string(out.Body), "Email Sent") {
		return nil
	}
	return upstreamError(out)
}
