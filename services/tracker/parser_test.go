package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskcloud/mailbridge/config"
	"github.com/taskcloud/mailbridge/internal/enum"
)

func newTestParser() *Parser {
	return NewParser(&config.TrackerConfig{
		BaseURL: "https://jira.task-cloud.ru",
		Markers: []string{"jira.task-cloud.ru", "atlassian jira"},
	})
}

const createdMailHTML = `
<html><body>
<h1>Fix login timeout</h1>
<p><a href="https://jira.task-cloud.ru/browse/OPS-142">OPS-142</a></p>
<p>Issue created</p>
<table>
<tr class="field-update-row">
  <td class="updates-diff-label">Reporter:</td>
  <td class="updates-diff-content"><a href="#">Anna Petrova</a></td>
</tr>
</table>
<p>This message was sent by Atlassian Jira</p>
</body></html>`

const assignedMailHTML = `
<html><body>
<h1>Fix login timeout</h1>
<p><a href="https://jira.task-cloud.ru/browse/OPS-142">OPS-142</a></p>
<p>The issue is now assigned to you.</p>
<div>Changes by <strong>Ivan Sidorov</strong><br>Assignee: you</div>
<p>jira.task-cloud.ru</p>
</body></html>`

const commentMailHTML = `
<html><body>
<h1>Fix login timeout</h1>
<p><a href="https://jira.task-cloud.ru/browse/OPS-142">OPS-142</a></p>
<h2>1 comment</h2>
<table>
<tr><td><strong>Maria Ivanova</strong> on 12/May/24 10:15</td></tr>
<tr><td>Looks good, please also check the refresh flow.</td></tr>
</table>
<p>jira.task-cloud.ru</p>
</body></html>`

const updatesMailHTML = `
<html><body>
<h1>Fix login timeout</h1>
<p><a href="https://jira.task-cloud.ru/browse/OPS-142">OPS-142</a></p>
<h2>2 updates</h2>
<table>
<tr><td>Changes by <strong>Ivan Sidorov</strong></td></tr>
<tr><td>Priority: High</td></tr>
<tr><td>Changes by <strong>Anna Petrova</strong></td></tr>
<tr><td>Status: In Progress</td></tr>
</table>
<p>jira.task-cloud.ru</p>
</body></html>`

const worklogMailHTML = `
<html><body>
<h1>Fix login timeout</h1>
<p><a href="https://jira.task-cloud.ru/browse/OPS-142">OPS-142</a></p>
<div><strong>Ivan Sidorov</strong> has added worklog: 2h</div>
<p>jira.task-cloud.ru</p>
</body></html>`

func TestClassify_NonTrackerMail(t *testing.T) {
	// Arrange
	parser := newTestParser()
	html := `<html><body><p>Your invoice for May is attached.</p></body></html>`

	// Act
	outcome := parser.Classify(html)

	// Assert
	assert.Equal(t, OutcomeNotTracker, outcome.Kind)
	assert.Nil(t, outcome.Task)
	assert.Empty(t, outcome.Events)
}

func TestClassify_CreatedMail(t *testing.T) {
	// Arrange
	parser := newTestParser()

	// Act
	outcome := parser.Classify(createdMailHTML)

	// Assert
	assert.Equal(t, OutcomeTrackerEvents, outcome.Kind)
	require.NotNil(t, outcome.Task)
	assert.Equal(t, "OPS-142", outcome.Task.Key)
	assert.Equal(t, "https://jira.task-cloud.ru/browse/OPS-142", outcome.Task.URL)
	assert.Equal(t, "Fix login timeout", outcome.Task.Summary)
	require.Len(t, outcome.Events, 1)
	assert.Equal(t, enum.EventCreated, outcome.Events[0].Type)
	assert.Equal(t, "Anna Petrova", outcome.Events[0].Author)
}

func TestClassify_AssignedMail(t *testing.T) {
	// Arrange
	parser := newTestParser()

	// Act
	outcome := parser.Classify(assignedMailHTML)

	// Assert
	assert.Equal(t, OutcomeTrackerEvents, outcome.Kind)
	require.NotEmpty(t, outcome.Events)
	assert.Equal(t, enum.EventAssigned, outcome.Events[0].Type)
	assert.Equal(t, "Ivan Sidorov", outcome.Events[0].Author)
}

func TestClassify_CommentMail(t *testing.T) {
	// Arrange
	parser := newTestParser()

	// Act
	outcome := parser.Classify(commentMailHTML)

	// Assert
	assert.Equal(t, OutcomeTrackerEvents, outcome.Kind)
	require.Len(t, outcome.Events, 1)
	assert.Equal(t, enum.EventCommented, outcome.Events[0].Type)
	assert.Equal(t, "Maria Ivanova", outcome.Events[0].Author)
}

func TestClassify_UpdatesMailCollectsAllAuthors(t *testing.T) {
	// Arrange
	parser := newTestParser()

	// Act
	outcome := parser.Classify(updatesMailHTML)

	// Assert
	assert.Equal(t, OutcomeTrackerEvents, outcome.Kind)
	require.Len(t, outcome.Events, 2)
	// Authors are sorted within a type
	assert.Equal(t, Event{Author: "Anna Petrova", Type: enum.EventUpdated}, outcome.Events[0])
	assert.Equal(t, Event{Author: "Ivan Sidorov", Type: enum.EventUpdated}, outcome.Events[1])
}

func TestClassify_WorklogMail(t *testing.T) {
	// Arrange
	parser := newTestParser()

	// Act
	outcome := parser.Classify(worklogMailHTML)

	// Assert
	assert.Equal(t, OutcomeTrackerEvents, outcome.Kind)
	require.Len(t, outcome.Events, 1)
	assert.Equal(t, enum.EventWorklogged, outcome.Events[0].Type)
	assert.Equal(t, "Ivan Sidorov", outcome.Events[0].Author)
}

func TestClassify_TrackerMailWithoutEvents(t *testing.T) {
	// Arrange
	parser := newTestParser()
	html := `<html><body><p>Weekly digest from jira.task-cloud.ru</p></body></html>`

	// Act
	outcome := parser.Classify(html)

	// Assert
	assert.Equal(t, OutcomeTrackerNoEvents, outcome.Kind)
	assert.Empty(t, outcome.Events)
}

func TestClassify_UnresolvableAuthorFallsBackToSentinel(t *testing.T) {
	// Arrange
	parser := newTestParser()
	html := `<html><body>
<p><a href="https://jira.task-cloud.ru/browse/OPS-7">OPS-7</a></p>
<p>Issue created</p>
<p>jira.task-cloud.ru</p>
</body></html>`

	// Act
	outcome := parser.Classify(html)

	// Assert
	assert.Equal(t, OutcomeTrackerEvents, outcome.Kind)
	require.Len(t, outcome.Events, 1)
	assert.Equal(t, UnknownActor, outcome.Events[0].Author)
}

func TestClassify_Deterministic(t *testing.T) {
	// Arrange
	parser := newTestParser()

	// Act
	first := parser.Classify(updatesMailHTML)
	second := parser.Classify(updatesMailHTML)

	// Assert
	assert.Equal(t, first, second)
}

func TestClassify_MalformedInputNeverPanics(t *testing.T) {
	// Arrange
	parser := newTestParser()
	inputs := []string{
		"",
		"jira.task-cloud.ru",
		"<html><body><h2>update</h2>",
		"<<<>>>jira.task-cloud.ru<table><tr><td>",
	}

	// Act & Assert
	for _, input := range inputs {
		assert.NotPanics(t, func() {
			parser.Classify(input)
		})
	}
}
