package npid

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestEncodeSubmitVideo(t *testing.T) {
	req, err := encodeSubmitVideo(SubmitVideoRequest{
		AthleteID:     "863999",
		AthleteMainID: "1543887",
		Sport:         "football",
		Season:        "highschool:18249",
		Source:        SourceYoutube,
		VideoType:     VideoTypeFullSeason,
		VideoUrl:      "https://youtu.be/abc123",
		AutoApprove:   true,
	})
	require.NoError(t, err)

	require.Equal(t, "/athlete/update/careervideos/863999", req.Path)
	require.True(t, req.NeedsToken)
	require.False(t, req.NeedsAPIKey)

	expected := url.Values{
		"athleteviewtoken":             {""},
		"schoolinfo[add_video_season]": {"18249"},
		"sport_alias":                  {"football"},
		"url_source":                   {"youtube"},
		"newVideoLink":                 {"https://youtu.be/abc123"},
		"videoType":                    {"Full Season Highlight"},
		"newVideoSeason":               {""},
		"athlete_main_id":              {"1543887"},
		"approve_video":                {"1"},
	}
	if diff := cmp.Diff(expected, req.Form); diff != "" {
		t.Fatalf("form mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeSubmitVideoNoApprove(t *testing.T) {
	req, err := encodeSubmitVideo(SubmitVideoRequest{
		AthleteID:     "1",
		AthleteMainID: "2",
		VideoUrl:      "https://www.hudl.com/video/3/456",
		Source:        SourceHudl,
		VideoType:     VideoTypeSkills,
	})
	require.NoError(t, err)
	_, present := req.Form["approve_video"]
	require.False(t, present)
	// no season picked, field still present and empty
	require.Equal(t, []string{""}, req.Form["schoolinfo[add_video_season]"])
}

func TestEncodeSubmitVideoValidation(t *testing.T) {
	_, err := encodeSubmitVideo(SubmitVideoRequest{
		AthleteID: "1", AthleteMainID: "2",
		VideoUrl: "https://vimeo.com/12345",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "VideoUrl", verr.Field)

	_, err = encodeSubmitVideo(SubmitVideoRequest{
		AthleteID: "1", VideoUrl: "https://youtu.be/x",
	})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "AthleteMainID", verr.Field)
}

func TestStageVocabulary(t *testing.T) {
	testCases := []struct {
		in       Stage
		expected string
	}{
		{StageOnHold, "On Hold"},
		{StageAwaitingClient, "Awaiting Client"},
		{StageInQueue, "In Queue"},
		{StageDone, "Done"},
		{Stage("ON-HOLD"), "On Hold"},
		{Stage("something else"), "In Queue"},
		{Stage(""), "In Queue"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, StageWireValue(tc.in), "stage %q", tc.in)
	}
}

func TestStatusVocabulary(t *testing.T) {
	testCases := []struct {
		in       Status
		expected string
	}{
		{StatusRevisions, "revisions"},
		{Status("revise"), "revisions"},
		{StatusHudl, "hudl"},
		{StatusDropbox, "dropbox"},
		{StatusExternalLinks, "external_links"},
		{Status("External Links"), "external_links"},
		{StatusNotApproved, "not_approved"},
		{Status("unknown"), "hudl"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, StatusWireValue(tc.in), "status %q", tc.in)
	}
}

func TestEncodeStageUpdate(t *testing.T) {
	req, err := encodeUpdateStage("9231", StageAwaitingClient)
	require.NoError(t, err)
	require.Equal(t, "/API/scout-api/video-stage", req.Path)
	require.Equal(t, ExpectEmpty, req.Expect)
	require.Equal(t, url.Values{
		"video_msg_id":         {"9231"},
		"video_progress_stage": {"Awaiting Client"},
	}, req.Form)

	_, err = encodeUpdateStage("", StageDone)
	require.Error(t, err)
}

func TestEncodeDueDate(t *testing.T) {
	req, err := encodeUpdateDueDate("9231", "03/15/2026")
	require.NoError(t, err)
	require.Equal(t, url.Values{
		"video_msg_id":   {"9231"},
		"video_due_date": {"03/15/2026"},
	}, req.Form)

	_, err = encodeUpdateDueDate("9231", "2026-03-15")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "DueDate", verr.Field)
}

func TestEncodeFetchSeasonsWantsAPIKey(t *testing.T) {
	req, err := encodeFetchSeasons(FetchSeasonsRequest{
		AthleteID:     "863999",
		AthleteMainID: "1543887",
		Sport:         "football",
		VideoType:     VideoTypeSingleGame,
	})
	require.NoError(t, err)
	require.True(t, req.NeedsAPIKey)
	require.True(t, req.NeedsToken)
	// the key itself is injected at execution time, never encoded
	_, present := req.Form["api_key"]
	require.False(t, present)
}

func TestEncodeProgressSendsEveryField(t *testing.T) {
	req := encodeSearchVideoProgress(ProgressFilter{LastName: "Smith"})
	for _, field := range []string{
		"first_name", "last_name", "email", "sport", "states",
		"athlete_school", "editorassigneddatefrom", "editorassigneddateto",
		"grad_year", "video_editor", "video_progress",
		"video_progress_stage", "video_progress_status",
	} {
		_, present := req.Form[field]
		require.True(t, present, "missing field %q", field)
	}
	require.Equal(t, []string{"Smith"}, req.Form["last_name"])
	require.Equal(t, []string{"0"}, req.Form["sport"])
}

func TestEncodeAssignThreadDuplicatesFields(t *testing.T) {
	req, err := encodeAssignThread(AssignThreadRequest{
		MessageID:     "message_id98765",
		OwnerID:       "1408164",
		ContactID:     "555",
		AthleteMainID: "777",
		Stage:         StageInQueue,
		Status:        StatusHudl,
	})
	require.NoError(t, err)

	// the controller reads both spellings of these
	for _, pair := range [][2]string{
		{"contact_task", "contacttask"},
		{"athlete_main_id", "athletemainid"},
		{"video_progress_stage", "videoprogressstage"},
		{"video_progress_status", "videoprogressstatus"},
	} {
		require.Equal(t, req.Form[pair[0]], req.Form[pair[1]],
			"%s and %s diverge", pair[0], pair[1])
	}
	require.Equal(t, []string{"athlete"}, req.Form["contactfor"])
	require.Equal(t, []string{"In Queue"}, req.Form["video_progress_stage"])
}

func TestEncodeAssignThreadEmptyStageStaysEmpty(t *testing.T) {
	req, err := encodeAssignThread(AssignThreadRequest{
		MessageID: "1", OwnerID: "2",
	})
	require.NoError(t, err)
	require.Equal(t, []string{""}, req.Form["video_progress_stage"])
	require.Equal(t, []string{""}, req.Form["video_progress_status"])
}

func TestEncodeTemplateData(t *testing.T) {
	req, err := encodeFetchTemplateData("tmpl-77", "863999")
	require.NoError(t, err)
	require.Equal(t, "/admin/templatedata", req.Path)
	require.True(t, req.NeedsToken)
	require.Equal(t, []string{"tmpl-77"}, req.Form["tmpl"])
	require.Equal(t, []string{"863999"}, req.Form["athlete_id"])

	_, err = encodeFetchTemplateData("", "863999")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestEncodeSendEmail(t *testing.T) {
	req, err := encodeSendEmail(SendEmailRequest{
		AthleteID: "863999",
		From:      "Jane Scout",
		FromEmail: "jane@example.com",
		Subject:   "Your highlight video",
		Message:   "It is ready.",
	})
	require.NoError(t, err)

	require.Equal(t, "/admin/addnotification", req.Path)
	require.True(t, req.NeedsToken)

	expected := url.Values{
		"notification_type_id":    {"1"},
		"notification_to_type_id": {"1"},
		"notification_to_id":      {"863999"},
		"notification_from":       {"Jane Scout"},
		"notification_from_email": {"jane@example.com"},
		"notification_subject":    {"Your highlight video"},
		"notification_message":    {"It is ready."},
		"includemysign":           {"includemysign"},
	}
	if diff := cmp.Diff(expected, req.Form); diff != "" {
		t.Fatalf("form mismatch (-want +got):\n%s", diff)
	}

	_, err = encodeSendEmail(SendEmailRequest{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestNoTokenAtEncodeTime(t *testing.T) {
	requests := []FormRequest{}
	r1, _ := encodeSubmitVideo(SubmitVideoRequest{
		AthleteID: "1", AthleteMainID: "2", VideoUrl: "https://youtu.be/x",
	})
	r2, _ := encodeUpdateStage("1", StageDone)
	r3, _ := encodeAssignThread(AssignThreadRequest{MessageID: "1", OwnerID: "2"})
	requests = append(requests, r1, r2, r3, encodeSearchVideoProgress(ProgressFilter{}))

	for _, req := range requests {
		_, present := req.Form["_token"]
		require.False(t, present, "%s carries a token at build time", req.Path)
	}
}
