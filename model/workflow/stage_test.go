package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusOrder(t *testing.T) {
	assert.Equal(t, 0, StatusBacklog.Order())
	assert.Equal(t, 6, StatusDone.Order())
	assert.Equal(t, -1, Status("bogus").Order())
	assert.True(t, StatusDone.IsTerminal())
	assert.False(t, StatusReview.IsTerminal())

	next, ok := StatusScoping.Next()
	assert.True(t, ok)
	assert.Equal(t, StatusResearching, next)

	_, ok = StatusDone.Next()
	assert.False(t, ok)
}

func TestResolveGatedEvent(t *testing.T) {
	w := New("w1", time.Now())
	w.Status = StatusScoping

	transition, err := Resolve(w, "scope.submitted")
	assert.NoError(t, err)
	assert.Equal(t, TransitionAwaitApproval, transition.Kind)
	assert.Equal(t, ArtifactScopeCard, transition.Artifact)

	transition, err = Resolve(w, "review.submitted")
	assert.NoError(t, err)
	assert.Equal(t, ArtifactReviewCard, transition.Artifact)
}

func TestResolveAutoEvent(t *testing.T) {
	w := New("w1", time.Now())

	transition, err := Resolve(w, "workflow.started")
	assert.NoError(t, err)
	assert.Equal(t, TransitionAuto, transition.Kind)
	assert.Equal(t, StatusScoping, transition.Next)

	w.Status = StatusInProgress
	transition, err = Resolve(w, "execution.completed")
	assert.NoError(t, err)
	assert.Equal(t, StatusReview, transition.Next)
}

func TestResolveUnknownEvent(t *testing.T) {
	w := New("w1", time.Now())
	_, err := Resolve(w, "nonsense.event")
	assert.Error(t, err)
}

func TestResolveSkipsSkippedStages(t *testing.T) {
	w := New("w1", time.Now())
	w.Skip(StatusScoping)
	w.Skip(StatusResearching)

	transition, err := Resolve(w, "workflow.started")
	assert.NoError(t, err)
	assert.Equal(t, StatusPlanning, transition.Next)
}

func TestAdvanceGuardsBackwards(t *testing.T) {
	now := time.Now()
	w := New("w1", now)
	w.Status = StatusPlanning
	w.AwaitingApproval = true
	w.PendingArtifact = ArtifactPlan

	assert.False(t, w.Advance(StatusScoping, now))
	assert.Equal(t, StatusPlanning, w.Status)

	assert.True(t, w.Advance(StatusInProgress, now))
	assert.Equal(t, StatusInProgress, w.Status)
	assert.False(t, w.AwaitingApproval)
	assert.Empty(t, w.PendingArtifact)
}

func TestGatedStage(t *testing.T) {
	stage, ok := ArtifactPlan.GatedStage()
	assert.True(t, ok)
	assert.Equal(t, StatusPlanning, stage)

	_, ok = ArtifactType("bogus").GatedStage()
	assert.False(t, ok)
}
