package device

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Borislavv/go-ash-perf/config"
	"github.com/Borislavv/go-ash-perf/model"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"
)

var mobileUA = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)

type (
	memoryReader func(ctx context.Context) (uint64, error)
	coresReader  func(ctx context.Context) (int, error)
)

// System reads memory and core count from the host and the form factor from config hints.
type System struct {
	cfg    config.DeviceCfg
	logger *slog.Logger
	memory memoryReader
	cores  coresReader
}

func NewSystem(cfg config.DeviceCfg, logger *slog.Logger) *System {
	return &System{
		cfg:    cfg,
		logger: logger,
		memory: func(ctx context.Context) (uint64, error) {
			vm, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return vm.Total, nil
		},
		cores: func(ctx context.Context) (int, error) {
			return cpu.CountsWithContext(ctx, true)
		},
	}
}

// Snapshot probes memory and cores concurrently. Any probe failure fails the snapshot.
func (s *System) Snapshot(ctx context.Context) (model.DeviceProfile, error) {
	var (
		total uint64
		cores int
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if total, err = s.memory(gCtx); err != nil {
			return fmt.Errorf("read memory: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if cores, err = s.cores(gCtx); err != nil {
			return fmt.Errorf("read cores: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.DeviceProfile{}, err
	}

	profile := FromHints(s.cfg)
	profile.Cores = cores
	if total > 0 {
		profile.Memory = &total
	}

	s.logger.Info("device detected",
		"mobile", profile.IsMobile,
		"tablet", profile.IsTablet,
		"touch", profile.IsTouch,
		"cores", profile.Cores,
		"memory", total,
	)
	return profile, nil
}

// FromHints builds the form-factor part of a profile. Memory and cores stay unknown.
func FromHints(cfg config.DeviceCfg) model.DeviceProfile {
	isMobile, isTablet := Classify(cfg.UserAgent)

	ratio := cfg.PixelRatio
	if ratio <= 0 {
		ratio = 1
	}
	viewport := model.Size{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight}
	if viewport == (model.Size{}) {
		viewport = model.Size{Width: cfg.ScreenWidth, Height: cfg.ScreenHeight}
	}

	return model.DeviceProfile{
		IsMobile:     isMobile,
		IsTablet:     isTablet,
		IsTouch:      cfg.Touch,
		PixelRatio:   ratio,
		ScreenSize:   model.Size{Width: cfg.ScreenWidth, Height: cfg.ScreenHeight},
		ViewportSize: viewport,
	}
}

// Classify reports phone and tablet user agents. An iPad, or an Android
// agent without "Mobile", is a tablet; both are reported as mobile too.
func Classify(userAgent string) (isMobile, isTablet bool) {
	if userAgent == "" {
		return false, false
	}
	isMobile = mobileUA.MatchString(userAgent)
	lower := strings.ToLower(userAgent)
	isTablet = strings.Contains(lower, "ipad") ||
		(strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"))
	return isMobile, isTablet
}

// Static returns a fixed profile.
type Static struct {
	Profile model.DeviceProfile
	Err     error
}

func (s Static) Snapshot(context.Context) (model.DeviceProfile, error) {
	return s.Profile, s.Err
}
