package k8s

import (
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
)

// JobInformer is the part of a shared Job informer a workload subscribes to.
type JobInformer interface {
	AddEventHandler(handler cache.ResourceEventHandler) (cache.ResourceEventHandlerRegistration, error)
	RemoveEventHandler(handle cache.ResourceEventHandlerRegistration) error
}

// PodWatcher is a pod informer scoped to the pods of one job.
type PodWatcher interface {
	AddEventHandler(handler cache.ResourceEventHandler) (cache.ResourceEventHandlerRegistration, error)
	Run(stopCh <-chan struct{})
}

// PodWatcherFactory opens a pod watch for the pods of jobName.
type PodWatcherFactory func(namespace, jobName string) PodWatcher

// JobInformers owns the shared Job informer of this instance, filtered to
// the jobs carrying its labels.
type JobInformers struct {
	factory informers.SharedInformerFactory
	jobs    cache.SharedIndexInformer
}

// NewJobInformers creates the shared Job informer. Start must be called
// before any workload is started.
func NewJobInformers(client kubernetes.Interface, namespace string, labels map[string]string, resync time.Duration) *JobInformers {
	selector := FlattenLabels(labels)
	factory := informers.NewSharedInformerFactoryWithOptions(client, resync,
		informers.WithNamespace(namespace),
		informers.WithTweakListOptions(func(o *metav1.ListOptions) {
			o.LabelSelector = selector
		}),
	)
	return &JobInformers{
		factory: factory,
		jobs:    factory.Batch().V1().Jobs().Informer(),
	}
}

// Jobs returns the shared Job informer.
func (i *JobInformers) Jobs() JobInformer {
	return i.jobs
}

// Start runs the informers until stopCh closes and waits for the first list.
func (i *JobInformers) Start(stopCh <-chan struct{}) bool {
	i.factory.Start(stopCh)
	return cache.WaitForCacheSync(stopCh, i.jobs.HasSynced)
}

// Shutdown waits for the informer goroutines after stopCh was closed.
func (i *JobInformers) Shutdown() {
	i.factory.Shutdown()
}

// NewPodWatcherFactory returns a factory of pod informers selected by
// "job-name=<name>".
func NewPodWatcherFactory(client kubernetes.Interface, resync time.Duration) PodWatcherFactory {
	return func(namespace, jobName string) PodWatcher {
		factory := informers.NewSharedInformerFactoryWithOptions(client, resync,
			informers.WithNamespace(namespace),
			informers.WithTweakListOptions(func(o *metav1.ListOptions) {
				o.LabelSelector = PodJobNameLabel + "=" + jobName
			}),
		)
		return factory.Core().V1().Pods().Informer()
	}
}
