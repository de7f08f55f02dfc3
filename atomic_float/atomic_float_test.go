package atomic_float

import (
	"math"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAtomicMax(t *testing.T) {
	Convey("When AtomicMax is called", t, func() {
		Convey("When multiple writers race to raise the value", func() {
			af := NewAtomicFloat64(0.0)
			num_ops := 3000
			num_writers := 200

			start := make(chan struct{})
			wg := sync.WaitGroup{}
			wg.Add(num_writers)
			raiser := func(offset int) {
				<-start
				for i := 0; i < num_ops; i++ {
					af.AtomicMax(float64(i*num_writers + offset))
				}
				wg.Done()
			}

			for i := 0; i < num_writers; i++ {
				go raiser(i)
			}

			// Wait for goroutines to begin
			time.Sleep(time.Millisecond * 10)
			close(start)
			wg.Wait()
			So(af.AtomicRead(), ShouldEqual, float64(num_ops*num_writers-1))
		})

		Convey("When the candidate is smaller the value is kept", func() {
			af := NewAtomicFloat64(2.5)
			So(af.AtomicMax(1.0), ShouldEqual, 2.5)
			So(af.AtomicRead(), ShouldEqual, 2.5)
		})

		Convey("When a candidate is NaN it sticks", func() {
			af := NewAtomicFloat64(1.0)
			af.AtomicMax(math.NaN())
			af.AtomicMax(10.0)
			So(math.IsNaN(af.AtomicRead()), ShouldBeTrue)
		})
	})

	Convey("When AtomicSet is called the value is replaced", t, func() {
		af := NewAtomicFloat64(3.0)
		af.AtomicSet(-1.0)
		So(af.AtomicRead(), ShouldEqual, -1.0)
	})
}
