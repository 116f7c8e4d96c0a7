package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/readystackgo/rsgo/internal/health"
)

// InfraCheck reports infrastructure health shared by every deployment on the
// host. It runs once per cycle.
type InfraCheck func(ctx context.Context) (*health.InfraHealth, error)

// DiskCheck reports the free space of each mount as disk health.
func DiskCheck(mounts ...string) InfraCheck {
	return diskCheck(freePercent, mounts)
}

func diskCheck(free func(string) (float64, error), mounts []string) InfraCheck {
	return func(ctx context.Context) (*health.InfraHealth, error) {
		infra := &health.InfraHealth{}
		var errs []error
		for _, mount := range mounts {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			pct, err := free(mount)
			if err != nil {
				errs = append(errs, fmt.Errorf("disk %s: %w", mount, err))
				continue
			}
			infra.Disks = append(infra.Disks, health.NewDiskHealth(mount, pct))
		}
		return infra, errors.Join(errs...)
	}
}
