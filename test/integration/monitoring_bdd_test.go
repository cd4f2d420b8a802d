//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/synapse-app/focusmon/internal/domain"
	"github.com/synapse-app/focusmon/internal/monitor"
	"github.com/synapse-app/focusmon/internal/rules"
	"github.com/synapse-app/focusmon/internal/storage"
)

// scriptedInspector serves whatever foreground process the test sets.
type scriptedInspector struct {
	mu   sync.Mutex
	proc string
	err  error
}

func (s *scriptedInspector) focus(proc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proc, s.err = proc, nil
}

func (s *scriptedInspector) noFocus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proc, s.err = "", domain.ErrNoFocusedWindow
}

func (s *scriptedInspector) Foreground(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc, s.err
}

func (s *scriptedInspector) ListProcesses(ctx context.Context) ([]domain.InstalledApp, error) {
	return []domain.InstalledApp{{DisplayName: "Code", ProcessName: "code.exe"}}, nil
}

func (s *scriptedInspector) Terminate(ctx context.Context, name string) error {
	return domain.ErrUnknownProcess
}

var _ = Describe("Monitoring Daemon", func() {
	var (
		tmpDir    string
		rulesPath string
		insp      *scriptedInspector
		ruleStore *rules.Store
		watcher   *rules.Watcher
		store     *storage.Store
		svc       *monitor.Service
		logger    *zap.Logger
	)

	writeRules := func(whitelist, blacklist []string) {
		body, err := json.Marshal(map[string]any{
			"whitelist": whitelist,
			"blacklist": blacklist,
		})
		Expect(err).NotTo(HaveOccurred())
		tmp := rulesPath + ".tmp"
		Expect(os.WriteFile(tmp, body, 0o644)).To(Succeed())
		Expect(os.Rename(tmp, rulesPath)).To(Succeed())
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "focusmon-integration-*")
		Expect(err).NotTo(HaveOccurred())

		logger = zap.NewNop()
		rulesPath = filepath.Join(tmpDir, "apprules.json")
		writeRules([]string{"code.exe"}, []string{"steam.exe"})

		ruleStore = rules.NewStore(rulesPath, logger)
		watcher, err = rules.NewWatcher(ruleStore, logger)
		Expect(err).NotTo(HaveOccurred())

		store, err = storage.Open(filepath.Join(tmpDir, "focusmon.db"), "", logger)
		Expect(err).NotTo(HaveOccurred())

		insp = &scriptedInspector{}
		insp.noFocus()

		cfg := monitor.DefaultConfig()
		cfg.PollInterval = 10 * time.Millisecond
		cfg.IdleTimeout = 100 * time.Millisecond
		svc = monitor.NewService(cfg, insp, ruleStore, store, logger)
	})

	AfterEach(func() {
		if svc.IsMonitoring() {
			Expect(svc.StopMonitoring()).To(Succeed())
		}
		watcher.Close()
		store.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("Session lifecycle", func() {
		It("records a focus session from work-app focus through idle close", func() {
			Expect(svc.StartMonitoring()).To(Succeed())

			insp.focus("code.exe")
			Eventually(svc.SessionOpen, time.Second, 10*time.Millisecond).Should(BeTrue())

			insp.focus("explorer.exe")
			Eventually(svc.SessionOpen, time.Second, 10*time.Millisecond).Should(BeFalse())

			Eventually(func() (int64, error) {
				summary, err := store.AggregateToday(context.Background())
				return summary.SessionCount, err
			}, time.Second, 10*time.Millisecond).Should(BeEquivalentTo(1))

			summary, err := store.AggregateToday(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.TotalWorkSeconds).To(BeNumerically(">=", 0))
		})

		It("finalizes the open session synchronously on stop", func() {
			Expect(svc.StartMonitoring()).To(Succeed())

			insp.focus("code.exe")
			Eventually(svc.SessionOpen, time.Second, 10*time.Millisecond).Should(BeTrue())

			Expect(svc.StopMonitoring()).To(Succeed())

			summary, err := store.AggregateToday(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.SessionCount).To(BeEquivalentTo(1))
		})
	})

	Describe("Distraction notifications", func() {
		It("delivers one notice per focus episode", func() {
			Expect(svc.StartMonitoring()).To(Succeed())

			insp.focus("steam.exe")
			var notice domain.BlockedNotice
			Eventually(svc.Notifications(), time.Second).Should(Receive(&notice))
			Expect(notice.ProcessName).To(Equal("steam.exe"))

			// staying focused must not produce a second notice
			Consistently(svc.Notifications(), 200*time.Millisecond).ShouldNot(Receive())
		})
	})

	Describe("Rule hot reload", func() {
		It("picks up rules written by another invocation", func() {
			Expect(svc.StartMonitoring()).To(Succeed())

			insp.focus("game.exe")
			Consistently(svc.Notifications(), 200*time.Millisecond).ShouldNot(Receive())

			writeRules([]string{"code.exe"}, []string{"steam.exe", "game.exe"})

			// a fresh focus episode after the reload triggers the block
			insp.focus("code.exe")
			Eventually(svc.SessionOpen, time.Second, 10*time.Millisecond).Should(BeTrue())
			insp.focus("game.exe")

			var notice domain.BlockedNotice
			Eventually(svc.Notifications(), 2*time.Second).Should(Receive(&notice))
			Expect(notice.ProcessName).To(Equal("game.exe"))
		})
	})

	Describe("Rule edits are not retroactive", func() {
		It("leaves already-recorded sessions and events untouched", func() {
			Expect(svc.StartMonitoring()).To(Succeed())

			insp.focus("code.exe")
			Eventually(svc.SessionOpen, time.Second, 10*time.Millisecond).Should(BeTrue())

			insp.focus("steam.exe")
			Eventually(svc.Notifications(), time.Second).Should(Receive())

			// idle out so the session and its events are flushed
			insp.focus("explorer.exe")
			Eventually(svc.SessionOpen, time.Second, 10*time.Millisecond).Should(BeFalse())
			Eventually(func() (int64, error) {
				summary, err := store.AggregateToday(context.Background())
				return summary.SessionCount, err
			}, time.Second, 10*time.Millisecond).Should(BeEquivalentTo(1))

			ctx := context.Background()
			sessions, err := store.SessionsClosedSince(ctx, time.Time{})
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(1))
			Expect(sessions[0].DistractionAttempts).To(Equal(1))

			before, err := store.EventsForSession(ctx, sessions[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(before).NotTo(BeEmpty())

			// steam.exe switches sides: whitelisted from now on
			writeRules([]string{"code.exe", "steam.exe"}, nil)
			Eventually(func() domain.Classification {
				return ruleStore.Classify("steam.exe", time.Now())
			}, time.Second, 10*time.Millisecond).Should(Equal(domain.ClassWork))

			after, err := store.EventsForSession(ctx, sessions[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before), "recorded events must keep their original status")

			reread, err := store.SessionsClosedSince(ctx, time.Time{})
			Expect(err).NotTo(HaveOccurred())
			Expect(reread).To(Equal(sessions))
		})
	})

	Describe("Snoozes", func() {
		It("suppresses notifications until the snooze expires", func() {
			Expect(ruleStore.Snooze("steam.exe", time.Hour)).To(Succeed())
			Expect(svc.StartMonitoring()).To(Succeed())

			insp.focus("steam.exe")
			Consistently(svc.Notifications(), 300*time.Millisecond).ShouldNot(Receive())
		})
	})
})
