package supervisor

// Overall system status values.
const (
	OverallHealthy        = "healthy"
	OverallAcceptable     = "acceptable"
	OverallNeedsAttention = "needs_attention"
)

// Dashboard summarizes the health of every constraint.
type Dashboard struct {
	Status           string  `json:"status"`
	AveragePrecision float64 `json:"average_precision"`
	TotalConstraints int     `json:"total_constraints"`
	Rated            int     `json:"rated"`

	Healthy     []*HealthReport `json:"healthy"`
	Acceptable  []*HealthReport `json:"acceptable"`
	NeedsReview []*HealthReport `json:"needs_review"`
	Unhealthy   []*HealthReport `json:"unhealthy"`
	NoData      []*HealthReport `json:"no_data"`
}

// Dashboard partitions all constraints by health. The average precision
// covers constraints with labeled feedback only.
func (s *Supervisor) Dashboard() *Dashboard {
	d := &Dashboard{
		Healthy:     []*HealthReport{},
		Acceptable:  []*HealthReport{},
		NeedsReview: []*HealthReport{},
		Unhealthy:   []*HealthReport{},
		NoData:      []*HealthReport{},
	}

	var sum float64
	for _, c := range s.constraints.List(false) {
		rep := s.report(c)
		d.TotalConstraints++

		switch rep.Status {
		case HealthHealthy:
			d.Healthy = append(d.Healthy, rep)
		case HealthAcceptable:
			d.Acceptable = append(d.Acceptable, rep)
		case HealthNeedsReview:
			d.NeedsReview = append(d.NeedsReview, rep)
		case HealthUnhealthy:
			d.Unhealthy = append(d.Unhealthy, rep)
		default:
			d.NoData = append(d.NoData, rep)
			continue
		}
		sum += rep.Metrics.Precision
		d.Rated++
	}

	if d.Rated > 0 {
		d.AveragePrecision = sum / float64(d.Rated)
	}

	switch {
	case len(d.Unhealthy) == 0 && len(d.NeedsReview) <= 2:
		d.Status = OverallHealthy
	case len(d.Unhealthy) <= 1:
		d.Status = OverallAcceptable
	default:
		d.Status = OverallNeedsAttention
	}
	return d
}
