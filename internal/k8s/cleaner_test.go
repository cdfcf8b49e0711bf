package k8s

import (
	"context"
	"errors"
	"testing"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

func finishedJob(name string, labels map[string]string, typ batchv1.JobConditionType, status corev1.ConditionStatus, at time.Time) *batchv1.Job {
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "jobs", Labels: labels},
		Status: batchv1.JobStatus{
			Conditions: []batchv1.JobCondition{{
				Type:               typ,
				Status:             status,
				LastTransitionTime: metav1.NewTime(at),
			}},
		},
	}
}

func remainingJobs(t *testing.T, client *fake.Clientset) map[string]bool {
	t.Helper()
	list, err := client.BatchV1().Jobs("jobs").List(context.Background(), metav1.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	out := make(map[string]bool, len(list.Items))
	for _, j := range list.Items {
		out[j.Name] = true
	}
	return out
}

func TestCleaner_DeletesExpiredFinishedJobs(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	labels := InstanceLabels("u1", "test")
	old := now.Add(-48 * time.Hour)

	client := fake.NewClientset(
		finishedJob("old-complete", labels, batchv1.JobComplete, corev1.ConditionTrue, old),
		finishedJob("old-failed", labels, batchv1.JobFailed, corev1.ConditionTrue, old),
		finishedJob("recent-complete", labels, batchv1.JobComplete, corev1.ConditionTrue, now.Add(-time.Hour)),
		finishedJob("old-suspended", labels, batchv1.JobSuspended, corev1.ConditionTrue, old),
		finishedJob("old-not-true", labels, batchv1.JobComplete, corev1.ConditionFalse, old),
		finishedJob("foreign", map[string]string{"app": "other"}, batchv1.JobComplete, corev1.ConditionTrue, old),
	)

	c := NewCleaner(client, "jobs", labels, 24*time.Hour, testLogger())
	c.now = func() time.Time { return now }
	c.Clean(context.Background())

	got := remainingJobs(t, client)
	for _, name := range []string{"old-complete", "old-failed"} {
		if got[name] {
			t.Errorf("%s should have been deleted", name)
		}
	}
	for _, name := range []string{"recent-complete", "old-suspended", "old-not-true", "foreign"} {
		if !got[name] {
			t.Errorf("%s should have been kept", name)
		}
	}
}

func TestCleaner_ErrorsAreNotFatal(t *testing.T) {
	labels := InstanceLabels("u1", "test")
	client := fake.NewClientset(
		finishedJob("a", labels, batchv1.JobComplete, corev1.ConditionTrue, time.Now().Add(-72*time.Hour)),
		finishedJob("b", labels, batchv1.JobComplete, corev1.ConditionTrue, time.Now().Add(-72*time.Hour)),
	)
	client.PrependReactor("delete", "jobs", func(action k8stesting.Action) (bool, runtime.Object, error) {
		if action.(k8stesting.DeleteAction).GetName() == "a" {
			return true, nil, errors.New("conflict")
		}
		return false, nil, nil
	})

	c := NewCleaner(client, "jobs", labels, time.Hour, testLogger())
	c.Clean(context.Background())

	got := remainingJobs(t, client)
	if !got["a"] || got["b"] {
		t.Errorf("remaining jobs = %v, want only a", got)
	}
}

func TestCleaner_ListFailure(t *testing.T) {
	client := fake.NewClientset()
	client.PrependReactor("list", "jobs", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("apiserver unavailable")
	})
	c := NewCleaner(client, "jobs", InstanceLabels("u1", "test"), time.Hour, testLogger())
	c.Clean(context.Background())
}
