package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lifeswap/internal/config"
	"lifeswap/internal/db"
	"lifeswap/internal/domain"
	"lifeswap/internal/engine"
	"lifeswap/internal/events"
	"lifeswap/internal/migrate"
	"lifeswap/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng, err := engine.New(conn, config.Default(), nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

const branchingDoc = `
id: abc
title: First morning
scenarios:
  - id: A
    type: decision
    choices:
      - id: A-B
        text: Help with breakfast
        next: B
        points_impact: 10
      - id: A-C
        text: Stay in your room
        next: C
        points_impact: 6
  - id: B
    parent: A
    type: reflection
    points_awarded: 2
  - id: C
    parent: A
    type: info
`

const hubDoc = `
id: hub
title: The courtyard
max_steps: 3
scenarios:
  - id: hub-yard
    type: decision
    choices:
      - id: hub-again
        text: Walk another lap
        next: hub-yard
        points_impact: 1
      - id: hub-leave
        text: Go inside
        next: hub-end
  - id: hub-end
    parent: hub-yard
    type: reflection
`

const gatedDoc = `
id: gated
title: The council
scenarios:
  - id: g-start
    type: decision
    choices:
      - id: g-earn
        text: Listen first
        next: g-mid
        points_impact: 5
      - id: g-skip
        text: Speak first
        next: g-mid
  - id: g-mid
    parent: g-start
    type: decision
    choices:
      - id: g-to-vip
        text: Join the elders
        next: g-vip
      - id: g-to-end
        text: Walk home
        next: g-end
  - id: g-vip
    parent: g-mid
    type: reflection
    points_awarded: 3
    condition:
      min_points: 5
  - id: g-end
    parent: g-mid
    type: info
`

const soloDoc = `
id: solo
title: A single postcard
scenarios:
  - id: solo-card
    type: info
    points_awarded: 4
`

const timedDoc = `
id: timed
title: Rush hour
scoring_policy: time_bonus
scenarios:
  - id: t-a
    type: decision
    time_limit: 30
    choices:
      - id: t-fast
        text: Take the tram
        next: t-end
        points_impact: 2
  - id: t-end
    parent: t-a
    type: info
    points_awarded: 1
`

func publish(t *testing.T, env testEnv, doc string) domain.Experience {
	t.Helper()
	res, err := env.Engine.ImportExperience(env.Ctx, []byte(doc), "author")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	exp, err := env.Engine.PublishExperience(env.Ctx, res.Experience.ID, "author")
	if err != nil {
		t.Fatalf("publish %s: %v", res.Experience.ID, err)
	}
	return exp
}

func TestBranchingWalkSealsOnTerminal(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env, branchingDoc)

	l, err := env.Engine.Start(env.Ctx, "u1", "abc")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if l.CurrentScenarioID == nil || *l.CurrentScenarioID != "A" || l.IsCompleted || l.PointsEarned != 0 || l.TotalScenarios != 3 {
		t.Fatalf("fresh ledger = %+v", l)
	}
	choices, err := env.Engine.ListAvailableChoices(env.Ctx, l.ID)
	if err != nil || len(choices) != 2 || choices[0].ID != "A-B" {
		t.Fatalf("available = %v, %v", choices, err)
	}

	l, err = env.Engine.SubmitChoice(env.Ctx, l.ID, "A-B", 12)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !l.IsCompleted || l.Outcome != domain.OutcomeCompleted || l.CompletionPercentage != 100 {
		t.Fatalf("ledger should be sealed at 100: %+v", l)
	}
	if l.PointsEarned != 12 || l.TimeSpent != 12 || l.CompletedAt == nil {
		t.Fatalf("aggregates = %+v", l)
	}
	if got := l.ChoicesMade(); len(got) != 1 || got[0] != "A-B" {
		t.Fatalf("history = %v", got)
	}

	cur, err := env.Engine.GetCurrentScenario(env.Ctx, l.ID)
	if err != nil || cur.ID != "B" {
		t.Fatalf("current = %v, %v", cur.ID, err)
	}
	if choices, _ := env.Engine.ListAvailableChoices(env.Ctx, l.ID); len(choices) != 0 {
		t.Fatalf("sealed ledger offers %v", choices)
	}
	if _, err := env.Engine.SubmitChoice(env.Ctx, l.ID, "A-C", 1); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if _, err := env.Engine.Complete(env.Ctx, l.ID); !errors.Is(err, domain.ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}

	st, err := env.Engine.UserStats(env.Ctx, "u1")
	if err != nil || st.EmpathyPoints != 12 || st.ExperiencesCompleted != 1 {
		t.Fatalf("stats = %+v, %v", st, err)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env, branchingDoc)
	first, err := env.Engine.Start(env.Ctx, "u1", "abc")
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.Start(env.Ctx, "u1", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("start created a second ledger: %s vs %s", first.ID, second.ID)
	}
	open := false
	ledgers, err := env.Engine.ListLedgers(env.Ctx, "u1", &open, 0)
	if err != nil || len(ledgers) != 1 {
		t.Fatalf("open ledgers = %d, %v", len(ledgers), err)
	}
	other, err := env.Engine.Start(env.Ctx, "u2", "abc")
	if err != nil || other.ID == first.ID {
		t.Fatalf("other user should get own ledger: %v", err)
	}
}

func TestStartFailures(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ImportExperience(env.Ctx, []byte(branchingDoc), "author"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Start(env.Ctx, "u1", "abc"); !errors.Is(err, domain.ErrNotPublished) {
		t.Fatalf("expected ErrNotPublished, got %v", err)
	}
	if _, err := env.Engine.Start(env.Ctx, "u1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := env.Engine.SubmitChoice(env.Ctx, "nope", "A-B", 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := env.Engine.GetCurrentScenario(env.Ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChoiceNotAvailableLeavesLedgerUnchanged(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env, branchingDoc)
	publish(t, env, gatedDoc)

	l, err := env.Engine.Start(env.Ctx, "u1", "gated")
	if err != nil {
		t.Fatal(err)
	}
	l, err = env.Engine.SubmitChoice(env.Ctx, l.ID, "g-earn", 3)
	if err != nil {
		t.Fatal(err)
	}
	before, _ := env.Engine.GetLedger(env.Ctx, l.ID)

	for _, choiceID := range []string{"A-B", "g-earn", "no-such-choice"} {
		if _, err := env.Engine.SubmitChoice(env.Ctx, l.ID, choiceID, 1); !errors.Is(err, domain.ErrChoiceNotAvailable) {
			t.Fatalf("%s: expected ErrChoiceNotAvailable, got %v", choiceID, err)
		}
	}
	after, _ := env.Engine.GetLedger(env.Ctx, l.ID)
	if after.StepCount != before.StepCount || after.PointsEarned != before.PointsEarned || after.TimeSpent != before.TimeSpent ||
		*after.CurrentScenarioID != *before.CurrentScenarioID || len(after.Steps) != len(before.Steps) ||
		after.CompletionPercentage != before.CompletionPercentage {
		t.Fatalf("ledger changed: before %+v after %+v", before, after)
	}
}

func TestConditionGatesVisibility(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env, gatedDoc)

	low, _ := env.Engine.Start(env.Ctx, "low", "gated")
	if _, err := env.Engine.SubmitChoice(env.Ctx, low.ID, "g-skip", 1); err != nil {
		t.Fatal(err)
	}
	choices, err := env.Engine.ListAvailableChoices(env.Ctx, low.ID)
	if err != nil || len(choices) != 1 || choices[0].ID != "g-to-end" {
		t.Fatalf("low points available = %v, %v", choices, err)
	}
	if _, err := env.Engine.SubmitChoice(env.Ctx, low.ID, "g-to-vip", 1); !errors.Is(err, domain.ErrChoiceNotAvailable) {
		t.Fatalf("hidden choice must be rejected, got %v", err)
	}

	high, _ := env.Engine.Start(env.Ctx, "high", "gated")
	if _, err := env.Engine.SubmitChoice(env.Ctx, high.ID, "g-earn", 1); err != nil {
		t.Fatal(err)
	}
	done, err := env.Engine.SubmitChoice(env.Ctx, high.ID, "g-to-vip", 1)
	if err != nil {
		t.Fatalf("vip path: %v", err)
	}
	if !done.IsCompleted || done.PointsEarned != 8 || done.CompletionPercentage != 100 {
		t.Fatalf("vip ledger = %+v", done)
	}
}

func TestStepLimitGuardsCycles(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env, hubDoc)

	l, err := env.Engine.Start(env.Ctx, "u1", "hub")
	if err != nil {
		t.Fatal(err)
	}
	if l.MaxSteps != 3 {
		t.Fatalf("max steps = %d", l.MaxSteps)
	}
	prev := l.CompletionPercentage
	for i := 0; i < 3; i++ {
		l, err = env.Engine.SubmitChoice(env.Ctx, l.ID, "hub-again", 1)
		if err != nil {
			t.Fatalf("lap %d: %v", i+1, err)
		}
		if l.CompletionPercentage < prev || l.CompletionPercentage > 100 {
			t.Fatalf("percentage %d after %d", l.CompletionPercentage, prev)
		}
		prev = l.CompletionPercentage
	}
	if _, err := env.Engine.SubmitChoice(env.Ctx, l.ID, "hub-leave", 1); !errors.Is(err, domain.ErrStepLimitExceeded) {
		t.Fatalf("expected ErrStepLimitExceeded, got %v", err)
	}
	got, _ := env.Engine.GetLedger(env.Ctx, l.ID)
	if got.StepCount != 3 || got.PointsEarned != 3 || got.IsCompleted {
		t.Fatalf("ledger after limit = %+v", got)
	}
	if got.CompletionPercentage != 100 {
		t.Fatalf("percentage should clamp at 100, got %d", got.CompletionPercentage)
	}
}

func TestPointsSumImpactsAndArrivals(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env, gatedDoc)
	l, _ := env.Engine.Start(env.Ctx, "u1", "gated")
	l, _ = env.Engine.SubmitChoice(env.Ctx, l.ID, "g-earn", 2)
	l, err := env.Engine.SubmitChoice(env.Ctx, l.ID, "g-to-vip", 4)
	if err != nil {
		t.Fatal(err)
	}
	want := 0
	for _, s := range l.Steps {
		want += s.PointsImpact + s.ArrivalPoints
	}
	if want != 8 || l.PointsEarned != want || l.TimeSpent != 6 {
		t.Fatalf("points = %d (want %d), time = %d", l.PointsEarned, want, l.TimeSpent)
	}
}

func TestCompleteRecordsEarlyExit(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env, branchingDoc)
	l, _ := env.Engine.Start(env.Ctx, "u1", "abc")
	exited, err := env.Engine.Complete(env.Ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if exited.Outcome != domain.OutcomeExited || !exited.IsCompleted || exited.CompletionPercentage != 0 {
		t.Fatalf("exit = %+v", exited)
	}
	st, _ := env.Engine.UserStats(env.Ctx, "u1")
	if st.ExperiencesExited != 1 || st.ExperiencesCompleted != 0 {
		t.Fatalf("stats = %+v", st)
	}
	again, err := env.Engine.Start(env.Ctx, "u1", "abc")
	if err != nil || again.ID == l.ID {
		t.Fatalf("restart should open a new ledger: %v", err)
	}
	evts, err := env.Engine.LatestEvents(env.Ctx, repo.EventFilters{Type: events.LedgerExited})
	if err != nil || len(evts) != 1 || evts[0].EntityID != l.ID {
		t.Fatalf("exit events = %v, %v", evts, err)
	}
}

func TestCompleteMidCycleIsExit(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env, hubDoc)
	l, _ := env.Engine.Start(env.Ctx, "u1", "hub")
	l, _ = env.Engine.SubmitChoice(env.Ctx, l.ID, "hub-again", 1)
	l, err := env.Engine.Complete(env.Ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	// percentage stays informational on exit
	if l.Outcome != domain.OutcomeExited || l.CompletionPercentage != 50 || l.PointsEarned != 1 {
		t.Fatalf("exit = %+v", l)
	}
}

func TestTerminalEntrySealsAtStart(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env, soloDoc)
	l, err := env.Engine.Start(env.Ctx, "u1", "solo")
	if err != nil {
		t.Fatal(err)
	}
	if !l.IsCompleted || l.CompletionPercentage != 100 || l.PointsEarned != 4 || l.Outcome != domain.OutcomeCompleted {
		t.Fatalf("solo ledger = %+v", l)
	}
	cur, err := env.Engine.GetCurrentScenario(env.Ctx, l.ID)
	if err != nil || cur.ID != "solo-card" {
		t.Fatalf("current = %v, %v", cur.ID, err)
	}
	next, _ := env.Engine.Start(env.Ctx, "u1", "solo")
	if next.ID == l.ID {
		t.Fatalf("sealed ledger must not be reused")
	}
}

func TestNegativeElapsedRejected(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env, branchingDoc)
	l, _ := env.Engine.Start(env.Ctx, "u1", "abc")
	if _, err := env.Engine.SubmitChoice(env.Ctx, l.ID, "A-B", -1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTimeBonusPolicy(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env, timedDoc)
	fast, _ := env.Engine.Start(env.Ctx, "fast", "timed")
	if fast.Policy != "time_bonus" {
		t.Fatalf("policy = %s", fast.Policy)
	}
	fast, err := env.Engine.SubmitChoice(env.Ctx, fast.ID, "t-fast", 10)
	if err != nil {
		t.Fatal(err)
	}
	if fast.PointsEarned != 2+1+config.DefaultTimeBonus {
		t.Fatalf("fast points = %d", fast.PointsEarned)
	}
	slow, _ := env.Engine.Start(env.Ctx, "slow", "timed")
	slow, _ = env.Engine.SubmitChoice(env.Ctx, slow.ID, "t-fast", 45)
	if slow.PointsEarned != 3 {
		t.Fatalf("slow points = %d", slow.PointsEarned)
	}
}

func TestPublishValidatesAndFreezes(t *testing.T) {
	env := newTestEnv(t)
	broken := `
id: broken
title: Broken
scenarios:
  - id: br-a
    type: decision
    choices:
      - id: br-x
        text: Nowhere
        next: br-missing
  - id: br-orphan
    parent: br-a
    type: info
`
	res, err := env.Engine.ImportExperience(env.Ctx, []byte(broken), "author")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(res.Issues) == 0 {
		t.Fatalf("import should preview issues")
	}
	_, err = env.Engine.PublishExperience(env.Ctx, "broken", "author")
	var se *domain.StructuralError
	if !errors.As(err, &se) || !errors.Is(err, domain.ErrStructuralInvalid) {
		t.Fatalf("expected structural error, got %v", err)
	}
	if err := env.Engine.ValidateExperience(env.Ctx, "broken"); !errors.Is(err, domain.ErrStructuralInvalid) {
		t.Fatalf("validate: %v", err)
	}
	evts, _ := env.Engine.LatestEvents(env.Ctx, repo.EventFilters{Type: events.ExperienceValidationFailed})
	if len(evts) != 1 {
		t.Fatalf("validation failure should be recorded, got %d events", len(evts))
	}
	exp, err := env.Engine.GetExperience(env.Ctx, "broken", true)
	if err != nil || exp.Published() {
		t.Fatalf("rejected experience must stay draft: %+v %v", exp, err)
	}

	exp = publish(t, env, branchingDoc)
	if !exp.Published() || exp.PublishedAt == nil {
		t.Fatalf("published = %+v", exp)
	}
	if _, err := env.Engine.PublishExperience(env.Ctx, "abc", "author"); err != nil {
		t.Fatalf("republish should be a no-op: %v", err)
	}
	if _, err := env.Engine.ImportExperience(env.Ctx, []byte(branchingDoc), "author"); !errors.Is(err, domain.ErrPublished) {
		t.Fatalf("expected ErrPublished, got %v", err)
	}
}

func TestImportRejectsForeignScenarioIDs(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env, branchingDoc)
	clash := `
id: clash
title: Clash
scenarios:
  - id: A
    type: info
`
	if _, err := env.Engine.ImportExperience(env.Ctx, []byte(clash), "author"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	unknownPolicy := "id: p\ntitle: P\nscoring_policy: lottery\nscenarios:\n  - id: p-a\n"
	if _, err := env.Engine.ImportExperience(env.Ctx, []byte(unknownPolicy), "author"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown policy, got %v", err)
	}
}

func TestCatalogReads(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env, branchingDoc)
	if _, err := env.Engine.ImportExperience(env.Ctx, []byte(hubDoc), "author"); err != nil {
		t.Fatal(err)
	}
	list, err := env.Engine.ListExperiences(env.Ctx, engine.CatalogFilters{})
	if err != nil || len(list) != 1 || list[0].ID != "abc" {
		t.Fatalf("catalog = %v, %v", list, err)
	}
	if _, err := env.Engine.GetExperience(env.Ctx, "hub", false); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("drafts are hidden from the catalog, got %v", err)
	}
	view, err := env.Engine.GetScenario(env.Ctx, "A")
	if err != nil || len(view.Choices) != 2 {
		t.Fatalf("scenario view = %+v, %v", view, err)
	}
	if _, err := env.Engine.GetScenario(env.Ctx, "hub-yard"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("draft scenario should be hidden, got %v", err)
	}
	scenarios, err := env.Engine.ListScenarios(env.Ctx, "abc")
	if err != nil || len(scenarios) != 3 || scenarios[0].ID != "A" || scenarios[1].ID != "B" || scenarios[2].ID != "C" {
		t.Fatalf("scenarios = %+v, %v", scenarios, err)
	}
	if _, err := env.Engine.ListScenarios(env.Ctx, "hub"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("draft scenarios should be hidden, got %v", err)
	}
}

func TestConcurrentSubmitsOnOneLedger(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env, branchingDoc)
	l, _ := env.Engine.Start(env.Ctx, "u1", "abc")

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.SubmitChoice(env.Ctx, l.ID, "A-B", 1)
		}(i)
	}
	wg.Wait()
	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrAlreadyCompleted):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("exactly one submission should win, got %d", ok)
	}
	got, _ := env.Engine.GetLedger(env.Ctx, l.ID)
	if len(got.Steps) != 1 || got.PointsEarned != 12 {
		t.Fatalf("ledger after race = %+v", got)
	}
	st, _ := env.Engine.UserStats(env.Ctx, "u1")
	if st.ExperiencesCompleted != 1 {
		t.Fatalf("stats bumped %d times", st.ExperiencesCompleted)
	}
}

func TestIndependentLedgersProceedInParallel(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env, branchingDoc)
	users := []string{"u1", "u2", "u3", "u4"}
	var wg sync.WaitGroup
	errs := make(chan error, len(users))
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			l, err := env.Engine.Start(env.Ctx, u, "abc")
			if err != nil {
				errs <- err
				return
			}
			if _, err := env.Engine.SubmitChoice(env.Ctx, l.ID, "A-C", 1); err != nil {
				errs <- err
			}
		}(u)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("parallel traversal: %v", err)
	}
	done := true
	for _, u := range users {
		ls, _ := env.Engine.ListLedgers(env.Ctx, u, &done, 0)
		if len(ls) != 1 || ls[0].PointsEarned != 6 {
			t.Fatalf("%s ledgers = %+v", u, ls)
		}
	}
}

func TestCreateAPIKey(t *testing.T) {
	env := newTestEnv(t)
	key, secret, err := env.Engine.CreateAPIKey(env.Ctx, "u1", "cli")
	if err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(secret))
	if err != nil || got.ID != key.ID || got.UserID != "u1" {
		t.Fatalf("lookup = %+v, %v", got, err)
	}
}

func TestRevokeAPIKeyIsOwnerScoped(t *testing.T) {
	env := newTestEnv(t)
	key, secret, err := env.Engine.CreateAPIKey(env.Ctx, "u1", "cli")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.CreateAPIKey(env.Ctx, "u2", "other"); err != nil {
		t.Fatal(err)
	}
	keys, err := env.Engine.ListAPIKeys(env.Ctx, "u1")
	if err != nil || len(keys) != 1 || keys[0].ID != key.ID || keys[0].KeyHash != "" {
		t.Fatalf("u1 keys = %+v, %v", keys, err)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, "u2", key.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign revoke should be not found, got %v", err)
	}
	if _, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(secret)); err != nil {
		t.Fatalf("key should survive a foreign revoke: %v", err)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, "u1", key.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(secret)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("revoked key still resolves: %v", err)
	}
	evts, err := env.Engine.LatestEvents(env.Ctx, repo.EventFilters{Type: events.APIKeyRevoked, Limit: 10})
	if err != nil || len(evts) != 1 || evts[0].EntityID != key.ID {
		t.Fatalf("revoke events = %+v, %v", evts, err)
	}
}
