package metrics

import "strings"

const prefix = "docqa_"

// MetricName prefixes name with the service namespace unless already present.
func MetricName(name string) string {
	if strings.HasPrefix(name, prefix) {
		return name
	}
	return prefix + name
}

// MetricNameWithSubsystem joins subsystem and name under the service namespace.
func MetricNameWithSubsystem(subsystem, name string) string {
	sub := strings.Trim(subsystem, "_")
	switch {
	case sub == "":
		return MetricName(name)
	case name == "":
		return MetricName(sub)
	default:
		return MetricName(sub + "_" + name)
	}
}
