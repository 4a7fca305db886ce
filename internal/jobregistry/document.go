package jobregistry

import "github.com/distsched/scheduler/internal/domain"

// Document is the ConfigStore-published representation of a JobConfig,
// keyed by JobConfig.DataID(). It mirrors the storage row closely enough
// that ConfigChangeReconciler (C6) can apply a pushed document back onto
// storage without a second round-trip to learn the natural key.
type Document struct {
	JobName            string               `yaml:"jobName" json:"jobName"`
	JobGroup           string               `yaml:"jobGroup" json:"jobGroup"`
	Environment        string               `yaml:"environment" json:"environment"`
	JobClass           string               `yaml:"jobClass" json:"jobClass"`
	JobType            domain.JobType       `yaml:"jobType" json:"jobType"`
	CronExpression     string               `yaml:"cronExpression" json:"cronExpression"`
	Status             domain.JobStatus     `yaml:"status" json:"status"`
	Parameters         map[string]any       `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	RetryCount         int                  `yaml:"retryCount" json:"retryCount"`
	RetryInterval      string               `yaml:"retryInterval" json:"retryInterval"`
	Timeout            string               `yaml:"timeout" json:"timeout"`
	GrayReleaseEnabled bool                 `yaml:"grayReleaseEnabled" json:"grayReleaseEnabled"`
	GrayReleasePercent int                  `yaml:"grayReleasePercent" json:"grayReleasePercent"`
	Alert              domain.AlertPolicy   `yaml:"alert" json:"alert"`
}

// FromJobConfig projects a JobConfig into its publishable Document form.
func FromJobConfig(job domain.JobConfig) Document {
	return Document{
		JobName:            job.JobName,
		JobGroup:           job.JobGroup,
		Environment:        job.Environment,
		JobClass:           job.JobClass,
		JobType:            job.JobType,
		CronExpression:     job.CronExpression,
		Status:             job.Status,
		Parameters:         job.Parameters,
		RetryCount:         job.RetryCount,
		RetryInterval:      job.RetryInterval.String(),
		Timeout:            job.Timeout.String(),
		GrayReleaseEnabled: job.GrayReleaseEnabled,
		GrayReleasePercent: job.GrayReleasePercent,
		Alert:              job.Alert,
	}
}

// ApplyTo overlays the document's fields onto an existing JobConfig (read
// from storage by natural key), preserving storage-only fields like ID,
// Version, CreatedAt. Used by ConfigChangeReconciler's re-read-before-write
// overlay.
func (d Document) ApplyTo(existing domain.JobConfig) (domain.JobConfig, error) {
	retryInterval, err := domain.NewDuration(d.RetryInterval)
	if err != nil {
		return domain.JobConfig{}, err
	}
	timeout, err := domain.NewDuration(d.Timeout)
	if err != nil {
		return domain.JobConfig{}, err
	}

	existing.JobClass = d.JobClass
	existing.JobType = d.JobType
	existing.CronExpression = d.CronExpression
	existing.Status = d.Status
	existing.Parameters = d.Parameters
	existing.RetryCount = d.RetryCount
	existing.RetryInterval = retryInterval
	existing.Timeout = timeout
	existing.GrayReleaseEnabled = d.GrayReleaseEnabled
	existing.GrayReleasePercent = d.GrayReleasePercent
	existing.Alert = d.Alert
	return existing, nil
}
