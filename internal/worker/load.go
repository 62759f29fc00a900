package worker

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// LoadSampler возвращает одноминутный load average хоста.
type LoadSampler interface {
	Load1() (float64, error)
}

// LoadFunc адаптирует функцию к LoadSampler.
type LoadFunc func() (float64, error)

// Load1 вызывает f.
func (f LoadFunc) Load1() (float64, error) { return f() }

// ProcLoad читает load average из /proc/loadavg.
type ProcLoad struct {
	fs procfs.FS
}

// NewProcLoad открывает procfs по стандартному пути.
func NewProcLoad() (*ProcLoad, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	return &ProcLoad{fs: fs}, nil
}

// Load1 возвращает одноминутный load average.
func (p *ProcLoad) Load1() (float64, error) {
	avg, err := p.fs.LoadAvg()
	if err != nil {
		return 0, fmt.Errorf("read loadavg: %w", err)
	}
	return avg.Load1, nil
}
