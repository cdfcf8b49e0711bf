package k8s

import (
	"fmt"
	"maps"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"

	"github.com/openjobspec/ojs-job-chief/internal/core"
	natsbackend "github.com/openjobspec/ojs-job-chief/internal/nats"
)

const (
	workerContainerName = "worker"
	backendTLSVolume    = "nats-tls"
	backendTLSMountPath = "/etc/nats/tls"
)

// ManifestOptions are the instance-wide inputs of every job manifest.
type ManifestOptions struct {
	InstanceUID string
	Namespace   string
	PullSecret  string
	Labels      map[string]string

	// Injected into workers of queues with InjectBackendConfig.
	BackendURL       string
	BackendTLSSecret string
}

// NewJobSpec builds the batch/v1 Job launched for one run of a queue.
func NewJobSpec(opts ManifestOptions, cfg *core.QueueJobConfig) (*batchv1.Job, error) {
	pod := &cfg.PodConfig

	labels := maps.Clone(opts.Labels)
	if labels == nil {
		labels = make(map[string]string, 1)
	}
	labels[LabelQueue] = cfg.QueueName

	container := corev1.Container{
		Name:            workerContainerName,
		Image:           pod.Image,
		ImagePullPolicy: corev1.PullPolicy(pod.PullPolicy),
		Command:         pod.Command,
		Args:            pod.Args,
		Env:             workerEnv(opts, cfg),
	}
	if envFrom := EnvFrom(pod.Configmaps, pod.Secrets); len(envFrom) > 0 {
		container.EnvFrom = envFrom
	}

	if pod.Resources != nil {
		res, err := resourceRequirements(pod.Resources)
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", cfg.QueueName, err)
		}
		container.Resources = res
	}

	if l := pod.Liveness; l != nil && l.Enabled {
		container.LivenessProbe = &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				HTTPGet: &corev1.HTTPGetAction{
					Path: l.Path,
					Port: intstr.FromInt32(l.Port),
				},
			},
			InitialDelaySeconds: l.InitialDelaySeconds,
			PeriodSeconds:       l.PeriodSeconds,
			TimeoutSeconds:      l.TimeoutSeconds,
		}
	}

	podSpec := corev1.PodSpec{
		RestartPolicy: corev1.RestartPolicyNever,
		Containers:    []corev1.Container{container},
	}
	if opts.PullSecret != "" {
		podSpec.ImagePullSecrets = []corev1.LocalObjectReference{{Name: opts.PullSecret}}
	}
	if pod.InjectBackendConfig && opts.BackendTLSSecret != "" {
		podSpec.Volumes = []corev1.Volume{{
			Name: backendTLSVolume,
			VolumeSource: corev1.VolumeSource{
				Secret: &corev1.SecretVolumeSource{SecretName: opts.BackendTLSSecret},
			},
		}}
		podSpec.Containers[0].VolumeMounts = []corev1.VolumeMount{{
			Name:      backendTLSVolume,
			MountPath: backendTLSMountPath,
			ReadOnly:  true,
		}}
	}

	return &batchv1.Job{
		TypeMeta: metav1.TypeMeta{APIVersion: "batch/v1", Kind: "Job"},
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: fmt.Sprintf("job-chief-%s-%s-", opts.InstanceUID, cfg.QueueName),
			Namespace:    opts.Namespace,
			Labels:       labels,
		},
		Spec: batchv1.JobSpec{
			Parallelism:  ptr.To(pod.Parallelism),
			BackoffLimit: ptr.To[int32](0),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Name:   fmt.Sprintf("job-chief-%s-pod", cfg.QueueName),
					Labels: maps.Clone(labels),
				},
				Spec: podSpec,
			},
		},
	}, nil
}

func workerEnv(opts ManifestOptions, cfg *core.QueueJobConfig) []corev1.EnvVar {
	env := []corev1.EnvVar{{Name: "QUEUE_NAME", Value: cfg.QueueName}}
	for _, e := range cfg.PodConfig.Env {
		env = append(env, corev1.EnvVar{Name: e.Name, Value: e.Value})
	}
	if !cfg.PodConfig.InjectBackendConfig {
		return env
	}

	env = append(env,
		corev1.EnvVar{Name: "NATS_URL", Value: opts.BackendURL},
		corev1.EnvVar{Name: "NATS_STREAM", Value: natsbackend.StreamName},
		corev1.EnvVar{Name: "NATS_SUBJECT", Value: natsbackend.QueueItemsSubject(cfg.QueueName)},
		corev1.EnvVar{Name: "NATS_CONSUMER", Value: natsbackend.ConsumerName(cfg.QueueName)},
		corev1.EnvVar{Name: "NATS_STATS_BUCKET", Value: natsbackend.BucketStats},
	)
	if opts.BackendTLSSecret != "" {
		env = append(env,
			corev1.EnvVar{Name: "NATS_CA", Value: backendTLSMountPath + "/ca.crt"},
			corev1.EnvVar{Name: "NATS_CERT", Value: backendTLSMountPath + "/tls.crt"},
			corev1.EnvVar{Name: "NATS_KEY", Value: backendTLSMountPath + "/tls.key"},
		)
	}
	return env
}

func resourceRequirements(r *core.ResourceRequirements) (corev1.ResourceRequirements, error) {
	limits, err := resourceList(r.Limits)
	if err != nil {
		return corev1.ResourceRequirements{}, fmt.Errorf("limits: %w", err)
	}
	requests, err := resourceList(r.Requests)
	if err != nil {
		return corev1.ResourceRequirements{}, fmt.Errorf("requests: %w", err)
	}
	return corev1.ResourceRequirements{Limits: limits, Requests: requests}, nil
}

func resourceList(l core.ResourceList) (corev1.ResourceList, error) {
	out := corev1.ResourceList{}
	for name, v := range map[corev1.ResourceName]string{
		corev1.ResourceCPU:    l.CPU,
		corev1.ResourceMemory: l.Memory,
	} {
		if v == "" {
			continue
		}
		q, err := resource.ParseQuantity(v)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", name, v, err)
		}
		out[name] = q
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
