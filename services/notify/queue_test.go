package notify

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/alumni/core"
)

func TestQueue(t *testing.T) {
	var rendered []core.Notification
	q := NewQueue(func(n core.Notification) {
		// single renderer: no locking needed
		rendered = append(rendered, n)
	}, 2)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Notify(core.Notification{Level: core.NotifyInfo, Message: fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()
	q.Close()

	assert.Len(t, rendered, 10)

	// closed queue
	q.Notify(core.Notification{Level: core.NotifyError, Message: "late"})
	q.Close()
	assert.Len(t, rendered, 10)
}

func TestQueue_Order(t *testing.T) {
	var rendered []string
	q := NewQueue(func(n core.Notification) { rendered = append(rendered, n.Message) }, 0)
	for _, msg := range []string{"a", "b", "c"} {
		q.Notify(core.Notification{Level: core.NotifySuccess, Message: msg})
	}
	q.Close()
	assert.Equal(t, []string{"a", "b", "c"}, rendered)
}
