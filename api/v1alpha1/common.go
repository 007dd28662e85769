package v1alpha1

func StringToJobStatus(s string) JobStatus {
	switch s {
	case string(JobStatusQueued):
		return JobStatusQueued
	case string(JobStatusRunning):
		return JobStatusRunning
	case string(JobStatusSucceeded):
		return JobStatusSucceeded
	case string(JobStatusFailed):
		return JobStatusFailed
	case string(JobStatusCanceled):
		return JobStatusCanceled
	default:
		return JobStatusUnknown
	}
}

func StringToProvider(s string) (Provider, bool) {
	switch s {
	case string(ProviderSora):
		return ProviderSora, true
	case string(ProviderVeo):
		return ProviderVeo, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further refresh can change the status.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

func (s JobStatus) IsValid() bool {
	return StringToJobStatus(string(s)) == s
}
