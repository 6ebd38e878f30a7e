package hazardconsole

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/infrastructure/cache"
	"hazardsync/internal/infrastructure/persistence/sqlite/model"
	"hazardsync/internal/infrastructure/persistence/sqlite/repository"
	"hazardsync/internal/infrastructure/persistence/sqlite/uow"
	"hazardsync/internal/infrastructure/tokenstore"
	"hazardsync/internal/usecase/hazards"
)

type consoleFixture struct {
	service *hazards.Service
	model   *consoleModel
	stop    func()
}

func setupConsole(t *testing.T, options Options, descriptions ...string) consoleFixture {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "console.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	svc := hazards.NewService(
		repository.NewRemoteRepository(db),
		tokenstore.New(cache.NewSQLiteCache(db)),
		nil,
		uow.NewUnitOfWork(db),
		hazards.NewFanout(),
	)
	ctx := context.Background()
	for _, description := range descriptions {
		if _, err := svc.CreateReport(ctx, hazards.ReportInput{Description: description}); err != nil {
			t.Fatalf("CreateReport() error = %v", err)
		}
	}

	active, _, err := svc.RegisterView(ctx, hazard.ActiveView())
	if err != nil {
		t.Fatalf("RegisterView(active) error = %v", err)
	}
	resolved, _, err := svc.RegisterView(ctx, hazard.ResolvedView())
	if err != nil {
		t.Fatalf("RegisterView(resolved) error = %v", err)
	}

	m, stop := NewModel(ctx, svc, active, resolved, options)
	t.Cleanup(stop)
	return consoleFixture{service: svc, model: m.(*consoleModel), stop: stop}
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestConsoleNavigation(t *testing.T) {
	fixture := setupConsole(t, Options{}, "first hazard", "second hazard")
	m := fixture.model

	if got := len(m.rows[tabActive]); got != 2 {
		t.Fatalf("active rows = %d, want 2", got)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if m.selected[tabActive] != 1 {
		t.Fatalf("selected = %d, want 1", m.selected[tabActive])
	}
	rec, ok := m.selectedRecord()
	if !ok || rec.Description != "second hazard" {
		t.Fatalf("selectedRecord() = %+v, %v", rec, ok)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if m.tab != tabResolved {
		t.Fatalf("tab = %d, want resolved", m.tab)
	}
	if _, ok := m.selectedRecord(); ok {
		t.Fatalf("selectedRecord() on empty resolved tab should be false")
	}

	view := m.View()
	for _, want := range []string{"active (2)", "resolved (0)", "no reports"} {
		if !strings.Contains(view, want) {
			t.Fatalf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestConsoleResolveMovesRowAfterViewChange(t *testing.T) {
	fixture := setupConsole(t, Options{StaffMember: "K. Duarte"}, "blocked exit")
	m := fixture.model

	_, cmd := m.Update(runeKey('r'))
	if cmd == nil {
		t.Fatalf("resolve returned no command")
	}
	msg, ok := cmd().(actionDoneMsg)
	if !ok || msg.err != nil {
		t.Fatalf("resolve result = %+v", msg)
	}
	m.Update(msg)
	if !strings.HasPrefix(m.status, "resolve done") {
		t.Fatalf("status = %q", m.status)
	}

	fixture.service.Fanout().Drain()
	m.Update(viewChangedMsg{})

	if len(m.rows[tabActive]) != 0 || len(m.rows[tabResolved]) != 1 {
		t.Fatalf("rows after resolve: active=%d resolved=%d", len(m.rows[tabActive]), len(m.rows[tabResolved]))
	}
	if m.selected[tabActive] != 0 {
		t.Fatalf("selected index not clamped: %d", m.selected[tabActive])
	}
}

func TestConsoleResolveRequiresStaffMember(t *testing.T) {
	fixture := setupConsole(t, Options{}, "wet floor")

	_, cmd := fixture.model.Update(runeKey('r'))
	msg := cmd().(actionDoneMsg)
	if msg.err == nil {
		t.Fatalf("resolve without staff member should fail")
	}
	fixture.model.Update(msg)
	if !strings.HasPrefix(fixture.model.status, "resolve failed") {
		t.Fatalf("status = %q", fixture.model.status)
	}
}

func TestConsoleDeleteAndSync(t *testing.T) {
	fixture := setupConsole(t, Options{}, "torn carpet")
	m := fixture.model

	_, cmd := m.Update(runeKey('d'))
	if msg := cmd().(actionDoneMsg); msg.err != nil {
		t.Fatalf("delete error = %v", msg.err)
	}
	fixture.service.Fanout().Drain()
	m.Update(viewChangedMsg{})
	if len(m.rows[tabActive]) != 0 {
		t.Fatalf("active rows after delete = %d", len(m.rows[tabActive]))
	}

	_, cmd = m.Update(runeKey('s'))
	done := cmd().(syncDoneMsg)
	if done.err != nil {
		t.Fatalf("sync error = %v", done.err)
	}
	m.Update(done)
	if !strings.HasPrefix(m.status, "synced") {
		t.Fatalf("status = %q", m.status)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate() = %q", got)
	}
	if got := truncate("a  very\nlong description", 8); got != "a very …" {
		t.Fatalf("truncate() = %q", got)
	}
}
