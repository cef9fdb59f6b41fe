package npid

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// This file holds the request half of the legacy translator. each
// operation gets a field table mapping the typed request onto the
// exact form names the dashboard's Laravel controllers expect. when
// the upstream renames a parameter, it gets fixed here and nowhere
// else.

type VideoType string

const (
	VideoTypeFullSeason    VideoType = "Full Season Highlight"
	VideoTypePartialSeason VideoType = "Partial Season Highlight"
	VideoTypeSingleGame    VideoType = "Single Game Highlight"
	VideoTypeSkills        VideoType = "Skills/Training Video"
)

type VideoSource string

const (
	SourceYoutube VideoSource = "youtube"
	SourceHudl    VideoSource = "hudl"
)

type Stage string

const (
	StageOnHold         Stage = "on_hold"
	StageAwaitingClient Stage = "awaiting_client"
	StageInQueue        Stage = "in_queue"
	StageDone           Stage = "done"
)

type Status string

const (
	StatusRevisions     Status = "revisions"
	StatusHudl          Status = "hudl"
	StatusDropbox       Status = "dropbox"
	StatusExternalLinks Status = "external_links"
	StatusNotApproved   Status = "not_approved"
)

// upstream wants Title Case for stages but lowercase slugs for
// statuses. unknown values fall back to the upstream's own defaults
// rather than failing the operation.
var stageWire = map[string]string{
	"on hold":         "On Hold",
	"awaiting client": "Awaiting Client",
	"in queue":        "In Queue",
	"done":            "Done",
}

var statusWire = map[string]string{
	"revisions":      "revisions",
	"revise":         "revisions",
	"hudl":           "hudl",
	"dropbox":        "dropbox",
	"external links": "external_links",
	"not approved":   "not_approved",
}

func normalizeKey(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	return strings.TrimSpace(s)
}

// StageWireValue maps any reasonable spelling of a stage onto the
// string the dashboard stores.
func StageWireValue(stage Stage) string {
	if v, ok := stageWire[normalizeKey(string(stage))]; ok {
		return v
	}
	return "In Queue"
}

func StatusWireValue(status Status) string {
	if v, ok := statusWire[normalizeKey(string(status))]; ok {
		return v
	}
	return "hudl"
}

type SubmitVideoRequest struct {
	AthleteID     string
	AthleteMainID string
	Sport         string
	// `level:id` as returned by FetchSeasons, e.g. "highschool:18249"
	Season      string
	Source      VideoSource
	VideoType   VideoType
	VideoUrl    string
	AutoApprove bool
}

var videoUrlRe = regexp.MustCompile(`(?i)(youtu|hudl)`)

func encodeSubmitVideo(req SubmitVideoRequest) (FormRequest, error) {
	if req.AthleteID == "" {
		return FormRequest{}, &ValidationError{Field: "AthleteID", Reason: "must not be empty"}
	}
	if req.AthleteMainID == "" {
		return FormRequest{}, &ValidationError{Field: "AthleteMainID", Reason: "must not be empty"}
	}
	if !videoUrlRe.MatchString(req.VideoUrl) {
		return FormRequest{}, &ValidationError{Field: "VideoUrl", Reason: "must be a youtube or hudl url"}
	}

	// the season dropdown value is `level:id` but the form only takes
	// the numeric id, and it lands in schoolinfo[add_video_season],
	// not newVideoSeason, which the upstream ignores unless empty
	seasonValue := ""
	if idx := strings.LastIndex(req.Season, ":"); idx >= 0 {
		seasonValue = req.Season[idx+1:]
	}

	form := url.Values{
		"athleteviewtoken":             {""},
		"schoolinfo[add_video_season]": {seasonValue},
		"sport_alias":                  {req.Sport},
		"url_source":                   {string(req.Source)},
		"newVideoLink":                 {req.VideoUrl},
		"videoType":                    {string(req.VideoType)},
		"newVideoSeason":               {""},
		"athlete_main_id":              {req.AthleteMainID},
	}
	if req.AutoApprove {
		form.Set("approve_video", "1")
	}

	return FormRequest{
		Method:     http.MethodPost,
		Path:       fmt.Sprintf("/athlete/update/careervideos/%s", req.AthleteID),
		Form:       form,
		Expect:     ExpectJSON,
		NeedsToken: true,
	}, nil
}

func encodeUpdateStage(videoMsgID string, stage Stage) (FormRequest, error) {
	if videoMsgID == "" {
		return FormRequest{}, &ValidationError{Field: "VideoMsgID", Reason: "must not be empty"}
	}
	return FormRequest{
		Method: http.MethodPost,
		Path:   "/API/scout-api/video-stage",
		Form: url.Values{
			"video_msg_id":         {videoMsgID},
			"video_progress_stage": {StageWireValue(stage)},
		},
		Expect:     ExpectEmpty,
		NeedsToken: true,
	}, nil
}

func encodeUpdateStatus(videoMsgID string, status Status) (FormRequest, error) {
	if videoMsgID == "" {
		return FormRequest{}, &ValidationError{Field: "VideoMsgID", Reason: "must not be empty"}
	}
	return FormRequest{
		Method: http.MethodPost,
		Path:   "/API/scout-api/video-status",
		Form: url.Values{
			"video_msg_id":          {videoMsgID},
			"video_progress_status": {StatusWireValue(status)},
		},
		Expect:     ExpectEmpty,
		NeedsToken: true,
	}, nil
}

var dueDateRe = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

func encodeUpdateDueDate(videoMsgID string, dueDate string) (FormRequest, error) {
	if videoMsgID == "" {
		return FormRequest{}, &ValidationError{Field: "VideoMsgID", Reason: "must not be empty"}
	}
	if !dueDateRe.MatchString(dueDate) {
		return FormRequest{}, &ValidationError{Field: "DueDate", Reason: "must be MM/DD/YYYY"}
	}
	return FormRequest{
		Method: http.MethodPost,
		Path:   "/tasks/videoduedate",
		Form: url.Values{
			"video_msg_id":   {videoMsgID},
			"video_due_date": {dueDate},
		},
		Expect:     ExpectEmpty,
		NeedsToken: true,
	}, nil
}

type FetchSeasonsRequest struct {
	AthleteID     string
	AthleteMainID string
	Sport         string
	VideoType     VideoType
}

// the seasons endpoint is the only one in the video family that wants
// the scout api key alongside the anti-forgery token.
func encodeFetchSeasons(req FetchSeasonsRequest) (FormRequest, error) {
	if req.AthleteID == "" {
		return FormRequest{}, &ValidationError{Field: "AthleteID", Reason: "must not be empty"}
	}
	return FormRequest{
		Method: http.MethodPost,
		Path:   "/API/scout-api/video-seasons-by-video-type",
		Form: url.Values{
			"athlete_id":      {req.AthleteID},
			"sport_alias":     {req.Sport},
			"video_type":      {string(req.VideoType)},
			"athlete_main_id": {req.AthleteMainID},
		},
		Expect:      ExpectJSON,
		NeedsToken:  true,
		NeedsAPIKey: true,
	}, nil
}

type ProgressFilter struct {
	FirstName string
	LastName  string
	Email     string
	Sport     string
	State     string
	GradYear  string
	Editor    string
	Stage     string
	Status    string
}

// every filter field is sent even when empty, the controller 500s on
// missing keys.
func encodeSearchVideoProgress(f ProgressFilter) FormRequest {
	form := url.Values{
		"first_name":             {f.FirstName},
		"last_name":              {f.LastName},
		"email":                  {f.Email},
		"sport":                  {"0"},
		"states":                 {"0"},
		"athlete_school":         {"0"},
		"editorassigneddatefrom": {""},
		"editorassigneddateto":   {""},
		"grad_year":              {f.GradYear},
		"video_editor":           {f.Editor},
		"video_progress":         {""},
		"video_progress_stage":   {f.Stage},
		"video_progress_status":  {f.Status},
	}
	if f.Sport != "" {
		form.Set("sport", f.Sport)
	}
	if f.State != "" {
		form.Set("states", f.State)
	}
	return FormRequest{
		Method:     http.MethodPost,
		Path:       "/videoteammsg/videoprogress",
		Form:       form,
		Expect:     ExpectJSON,
		NeedsToken: true,
	}
}

type AssignThreadRequest struct {
	MessageID     string
	OwnerID       string
	ContactID     string
	AthleteMainID string
	// "athlete" or "parent"
	ContactFor string
	Contact    string
	Stage      Stage
	Status     Status
}

// the assignment controller reads both snake_case and squashed copies
// of several fields, so both are sent with identical values.
func encodeAssignThread(req AssignThreadRequest) (FormRequest, error) {
	if req.MessageID == "" {
		return FormRequest{}, &ValidationError{Field: "MessageID", Reason: "must not be empty"}
	}
	if req.OwnerID == "" {
		return FormRequest{}, &ValidationError{Field: "OwnerID", Reason: "must not be empty"}
	}
	contactFor := req.ContactFor
	if contactFor == "" {
		contactFor = "athlete"
	}
	stage := ""
	if req.Stage != "" {
		stage = StageWireValue(req.Stage)
	}
	status := ""
	if req.Status != "" {
		status = StatusWireValue(req.Status)
	}
	return FormRequest{
		Method: http.MethodPost,
		Path:   "/videoteammsg/assignvideoteam",
		Form: url.Values{
			"messageid":             {req.MessageID},
			"videoscoutassignedto":  {req.OwnerID},
			"contact_task":          {req.ContactID},
			"contacttask":           {req.ContactID},
			"athlete_main_id":       {req.AthleteMainID},
			"athletemainid":         {req.AthleteMainID},
			"contactfor":            {contactFor},
			"contact":               {req.Contact},
			"video_progress_stage":  {stage},
			"videoprogressstage":    {stage},
			"video_progress_status": {status},
			"videoprogressstatus":   {status},
		},
		Expect:     ExpectEmpty,
		NeedsToken: true,
	}, nil
}

func encodeFetchAssignmentModal(messageID, itemCode string) FormRequest {
	return FormRequest{
		Method: http.MethodGet,
		Path:   tokenPagePath,
		Query: url.Values{
			"message_id": {messageID},
			"itemcode":   {itemCode},
		},
		Expect: ExpectHTML,
	}
}

func encodeAssignmentDefaults(contactID string) FormRequest {
	return FormRequest{
		Method: http.MethodGet,
		Path:   "/rulestemplates/messageassigninfo",
		Query:  url.Values{"contactid": {contactID}},
		Expect: ExpectJSON,
	}
}

func encodeSearchContacts(query, searchFor string) FormRequest {
	if searchFor == "" {
		searchFor = "athlete"
	}
	return FormRequest{
		Method: http.MethodGet,
		Path:   "/template/calendaraccess/contactslist",
		Query: url.Values{
			"search":    {query},
			"searchfor": {searchFor},
		},
		Expect: ExpectHTML,
	}
}

func encodeFetchEmailTemplates(contactID string) FormRequest {
	return FormRequest{
		Method: http.MethodGet,
		Path:   "/rulestemplates/template/videotemplates",
		Query:  url.Values{"id": {contactID}},
		Expect: ExpectHTML,
	}
}

// the template data endpoint resolves a template id into the sender
// identity, subject and body the dashboard would prefill.
func encodeFetchTemplateData(templateID, athleteID string) (FormRequest, error) {
	if templateID == "" {
		return FormRequest{}, &ValidationError{Field: "TemplateID", Reason: "must not be empty"}
	}
	return FormRequest{
		Method: http.MethodPost,
		Path:   "/admin/templatedata",
		Form: url.Values{
			"tmpl":       {templateID},
			"athlete_id": {athleteID},
		},
		Expect:     ExpectJSON,
		NeedsToken: true,
	}, nil
}

type SendEmailRequest struct {
	AthleteID  string
	TemplateID string
	// sender and content default to the template's prefill when empty
	From      string
	FromEmail string
	Subject   string
	Message   string
}

// the notification controller only knows fixed type ids: 1/1 is an
// email to an athlete.
func encodeSendEmail(req SendEmailRequest) (FormRequest, error) {
	if req.AthleteID == "" {
		return FormRequest{}, &ValidationError{Field: "AthleteID", Reason: "must not be empty"}
	}
	return FormRequest{
		Method: http.MethodPost,
		Path:   "/admin/addnotification",
		Form: url.Values{
			"notification_type_id":    {"1"},
			"notification_to_type_id": {"1"},
			"notification_to_id":      {req.AthleteID},
			"notification_from":       {req.From},
			"notification_from_email": {req.FromEmail},
			"notification_subject":    {req.Subject},
			"notification_message":    {req.Message},
			"includemysign":           {"includemysign"},
		},
		Expect:     ExpectHTML,
		NeedsToken: true,
	}, nil
}
