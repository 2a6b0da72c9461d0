//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/focusd/sbh/internal/ballast"
	"github.com/focusd/sbh/internal/control"
	"github.com/focusd/sbh/internal/executor"
	"github.com/focusd/sbh/internal/forecaster"
	"github.com/focusd/sbh/internal/journal"
	"github.com/focusd/sbh/internal/model"
	"github.com/focusd/sbh/internal/scoring"
	"github.com/focusd/sbh/internal/walker"
)

type fixedCooldown struct{}

func (fixedCooldown) Allow(string, time.Time) bool    { return true }
func (fixedCooldown) RecordDeletion(string, time.Time) {}

type fixedRegistry struct{ protected map[string]bool }

func (r fixedRegistry) IsProtected(path string) bool { return r.protected[path] }

var _ = Describe("Pressure-to-action pipeline", func() {
	var (
		horizons forecaster.Horizons
		gains    control.Gains
		logger   *zap.Logger
	)

	BeforeEach(func() {
		horizons = forecaster.Horizons{
			CriticalSeconds: 120, ImminentSeconds: 300, ActionSeconds: 1800, WarningSeconds: 3600, MinConfidence: 0.7,
		}
		gains = control.DefaultGains()
		logger = zap.NewNop()
	})

	Context("a mount holding steady in Green", func() {
		It("never escalates past Observe", func() {
			mgr := forecaster.NewManager(horizons, logger)
			loop := control.NewLoop("m1", gains)

			base := time.Now()
			var last model.ControlDecision
			for i := 0; i < 10; i++ {
				now := base.Add(time.Duration(i) * time.Second)
				proj := mgr.Observe(model.PressureSample{MountID: "m1", FreeBytes: 80_000_000_000, Timestamp: now})
				last = loop.Tick(now, model.Green, 0.8, proj, 0.5)
				Expect(last.Action).To(Equal(model.ActionObserve))
			}

			Expect(last.Action).To(Equal(model.ActionObserve))
			Expect(last.Urgency).To(BeNumerically("<", 0.3))
		})
	})

	Context("a mount whose free space is accelerating toward zero", func() {
		It("escalates to Emergency", func() {
			mgr := forecaster.NewManager(horizons, logger)
			loop := control.NewLoop("m2", gains)

			base := time.Now()
			free := uint64(50_000_000_000)
			var last model.ControlDecision
			for i := 0; i < 20; i++ {
				now := base.Add(time.Duration(i) * time.Second)
				drop := uint64(i) * 200_000_000 // accelerating drain
				free -= drop
				proj := mgr.Observe(model.PressureSample{MountID: "m2", FreeBytes: free, Timestamp: now})
				last = loop.Tick(now, model.Green, float64(free)/100_000_000_000, proj, 0.5)
			}

			Expect(last.Action).To(Equal(model.ActionEmergency))
		})
	})

	Context("a file under VCS control that scores high on every other factor", func() {
		It("is never deleted regardless of score", func() {
			tmp, err := os.MkdirTemp("", "sbh-integration-*")
			Expect(err).NotTo(HaveOccurred())
			defer os.RemoveAll(tmp)

			vcsDir := filepath.Join(tmp, ".git", "objects")
			Expect(os.MkdirAll(vcsDir, 0o755)).To(Succeed())
			target := filepath.Join(vcsDir, "deadbeef.pack")
			Expect(os.WriteFile(target, make([]byte, 1024), 0o644)).To(Succeed())
			old := time.Now().Add(-48 * time.Hour)
			Expect(os.Chtimes(target, old, old)).To(Succeed())

			exec := executor.New(executor.Config{
				MinFileAge:        time.Minute,
				MaxDeleteBatch:    10,
				CircuitHaltWindow: 30 * time.Second,
			}, fixedRegistry{}, fixedCooldown{}, logger, nil)

			candidate := model.Candidate{Path: target, Size: 1024, Mtime: old, Score: 0.99}
			results := exec.ExecuteBatch(context.Background(), []model.Candidate{candidate},
				func(c model.Candidate) string { return c.Path }, time.Now(), 0)

			Expect(results).To(HaveLen(1))
			Expect(results[0].Deleted).To(BeFalse())
			Expect(results[0].Veto).To(Equal(model.VetoUnderVCS))
			_, statErr := os.Stat(target)
			Expect(statErr).NotTo(HaveOccurred())
		})
	})

	Context("a batch of candidates that all fail the veto gate", func() {
		It("does not trip the circuit breaker, since vetoes are not deletion failures", func() {
			tmp, err := os.MkdirTemp("", "sbh-integration-*")
			Expect(err).NotTo(HaveOccurred())
			defer os.RemoveAll(tmp)

			events := make(chan model.ActivityEvent, 64)
			exec := executor.New(executor.Config{
				MinFileAge:        time.Minute,
				MaxDeleteBatch:    10,
				CircuitHaltWindow: time.Minute,
			}, fixedRegistry{}, fixedCooldown{}, logger, events)

			old := time.Now().Add(-time.Hour)
			var candidates []model.Candidate
			for i := 0; i < 5; i++ {
				missing := filepath.Join(tmp, "ghost", "does-not-exist")
				candidates = append(candidates, model.Candidate{Path: missing, Mtime: old})
			}
			// Every candidate is missing, so the veto gate rejects each one
			// before removal; none of them may open the circuit.
			results := exec.ExecuteBatch(context.Background(), candidates,
				func(c model.Candidate) string { return c.Path }, time.Now(), 0)

			for _, r := range results {
				Expect(r.Deleted).To(BeFalse())
				Expect(r.Veto).To(Equal(model.VetoNotRegularFile))
			}
			close(events)
			for evt := range events {
				Expect(evt.Kind).NotTo(Equal(model.EventCircuitOpened))
			}
		})
	})

	Context("the journal's SQLite sink being unavailable", func() {
		It("keeps accepting events through the JSONL sink", func() {
			tmp, err := os.MkdirTemp("", "sbh-integration-*")
			Expect(err).NotTo(HaveOccurred())
			defer os.RemoveAll(tmp)

			// A directory where the database file belongs makes every SQLite
			// open or write fail.
			Expect(os.Mkdir(filepath.Join(tmp, "events.db"), 0o700)).To(Succeed())

			j, err := journal.Open(tmp, logger)
			Expect(err).NotTo(HaveOccurred())
			defer j.Close()

			for i := 0; i < 20; i++ {
				j.Emit(model.ActivityEvent{Timestamp: time.Now(), Kind: model.EventHeartbeat, MountID: "m1"})
			}

			Eventually(func() error {
				_, statErr := os.Stat(filepath.Join(tmp, "events.jsonl"))
				return statErr
			}, 2*time.Second, 10*time.Millisecond).Should(Succeed())

			Expect(j.DroppedEvents()).To(BeZero())
		})
	})

	Context("a config reload with new scoring weights", func() {
		It("applies the new weights to subsequently scored candidates without needing a restart", func() {
			cfg1 := scoring.Config{
				Weights:            scoring.Weights{Location: 1, Pattern: 0, Age: 0, Size: 0, Structure: 0},
				Costs:              scoring.Costs{FalsePositive: 50, FalseNegative: 30},
				CalibrationFloor:   0.3,
				CharacteristicSize: 100 * 1024 * 1024,
			}
			calibrator := scoring.NewCalibrator(0.3)
			engine := scoring.NewEngine(cfg1, calibrator)

			c := model.Candidate{Path: "/tmp/x", Size: 1024, Mtime: time.Now().Add(-time.Hour)}
			scored1 := engine.Score(c, time.Now())

			cfg2 := cfg1
			cfg2.Weights = scoring.Weights{Location: 0, Pattern: 0, Age: 0, Size: 1, Structure: 0}
			engine2 := scoring.NewEngine(cfg2, calibrator)
			scored2 := engine2.Score(c, time.Now())

			Expect(scored1.Score).NotTo(Equal(scored2.Score))
		})
	})

	Context("ballast release under sustained pressure", func() {
		It("frees bytes by deleting the lowest-index files first", func() {
			tmp, err := os.MkdirTemp("", "sbh-integration-*")
			Expect(err).NotTo(HaveOccurred())
			defer os.RemoveAll(tmp)

			pool := ballast.NewPool("m1", tmp, 1, 4096)
			Expect(pool.Lock()).To(Succeed())
			defer pool.Unlock()

			files, err := pool.Provision(3)
			Expect(err).NotTo(HaveOccurred())
			Expect(files).To(HaveLen(3))

			freed, err := pool.Release(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(freed).To(BeNumerically(">", 0))

			inv := pool.Inventory()
			Expect(inv.Present).To(Equal(2))
			for _, f := range pool.Files() {
				Expect(f.Index).NotTo(Equal(uint32(0)))
			}
		})
	})
})

var _ = Describe("Directory role tagging during a scan", func() {
	It("tags node_modules descendants distinctly from source descendants", func() {
		tmp, err := os.MkdirTemp("", "sbh-integration-*")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(tmp)

		nm := filepath.Join(tmp, "project", "node_modules", "leftpad")
		Expect(os.MkdirAll(nm, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(nm, "index.js"), []byte("x"), 0o644)).To(Succeed())

		src := filepath.Join(tmp, "project", "src")
		Expect(os.MkdirAll(src, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(src, "main.go"), []byte("x"), 0o644)).To(Succeed())

		var found []model.Candidate
		var foundMu sync.Mutex
		err = walker.Walk(context.Background(), walker.Options{Root: tmp, Parallelism: 2}, func(c model.Candidate) {
			foundMu.Lock()
			found = append(found, c)
			foundMu.Unlock()
		})
		Expect(err).NotTo(HaveOccurred())

		roleOf := map[string]model.DirectoryRole{}
		for _, c := range found {
			roleOf[filepath.Base(c.Path)] = c.Role
		}
		Expect(roleOf["index.js"]).To(Equal(model.RoleNodeModules))
		Expect(roleOf["main.go"]).To(Equal(model.RoleSource))
	})
})
