package k8s

import (
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
)

// Label keys set on every job this instance creates.
const (
	LabelApp         = "app"
	LabelOwner       = "owner-id"
	LabelEnvironment = "environment"
	LabelQueue       = "queue-name"

	// PodJobNameLabel is set by the job controller on the pods of a job.
	PodJobNameLabel = "job-name"
)

// InstanceLabels returns the labels identifying jobs owned by one job-chief instance.
func InstanceLabels(instanceUID, environment string) map[string]string {
	return map[string]string{
		LabelApp:         "job-chief",
		LabelOwner:       instanceUID,
		LabelEnvironment: environment,
	}
}

// FlattenLabels renders labels as a selector string: "k1=v1,k2=v2".
// Keys are sorted so the output is stable.
func FlattenLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return strings.Join(parts, ",")
}

// EnvFrom references config maps first, then secrets.
func EnvFrom(configmaps, secrets []string) []corev1.EnvFromSource {
	out := make([]corev1.EnvFromSource, 0, len(configmaps)+len(secrets))
	for _, name := range configmaps {
		out = append(out, corev1.EnvFromSource{
			ConfigMapRef: &corev1.ConfigMapEnvSource{LocalObjectReference: corev1.LocalObjectReference{Name: name}},
		})
	}
	for _, name := range secrets {
		out = append(out, corev1.EnvFromSource{
			SecretRef: &corev1.SecretEnvSource{LocalObjectReference: corev1.LocalObjectReference{Name: name}},
		})
	}
	return out
}
