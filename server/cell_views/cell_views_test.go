package cell_views

import (
	"bytes"
	"html/template"
	"testing"

	"policyiter/models"
	"policyiter/reinforcement"
	"policyiter/server/fastview"

	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"
)

func always(numStates, action int) *mat.Dense {
	policy := mat.NewDense(numStates, models.NUM_ACTIONS, nil)
	for s := 0; s < numStates; s++ {
		policy.Set(s, action, 1)
	}
	return policy
}

func TestConvert(t *testing.T) {
	Convey("Given the 4x4 lake", t, func() {
		lake, err := models.Convert(models.Lake4x4, false)
		So(err, ShouldBeNil)
		convert := Converter(lake)

		Convey("Cells are laid out as the map is printed", func() {
			frame := convert(reinforcement.Progress{Policy: always(16, models.RIGHT)})
			So(len(frame.Cells), ShouldEqual, 4)
			So(len(frame.Cells[0]), ShouldEqual, 4)
			hole := frame.Cells[1][1]
			So(hole.X, ShouldEqual, 1)
			So(hole.Y, ShouldEqual, 1)
			So(hole.Terminal, ShouldBeTrue)
			So(hole.Fill, ShouldEqual, "lightsteelblue")
			So(frame.Cells[0][0].Fill, ShouldEqual, "lightblue")
			So(frame.Cells[3][3].Fill, ShouldEqual, "lightyellow")
		})

		Convey("Arrows point along the policy's heading", func() {
			cases := map[int]int{
				models.UP:    0,
				models.RIGHT: 90,
				models.DOWN:  180,
				models.LEFT:  -90,
			}
			for action, degrees := range cases {
				cell := convert(reinforcement.Progress{Policy: always(16, action)}).Cells[0][0]
				So(cell.PolicyArrowRotation, ShouldEqual, degrees)
				So(cell.PolicyArrowScale, ShouldEqual, 3)
			}
		})

		Convey("Undecided policies draw no arrow", func() {
			frame := InitialFrame(lake)
			So(frame.Cells[0][0].PolicyArrowScale, ShouldEqual, 0)
			So(frame.Cells[0][0].PolicyArrowRotation, ShouldEqual, 0)
			So(frame.Status, ShouldEqual, "running")
		})

		Convey("Values and progress details are carried", func() {
			values := make([]float64, 16)
			values[14] = 0.9
			frame := convert(reinforcement.Progress{
				Iteration:  2,
				Status:     reinforcement.Converged,
				Changed:    1,
				Evaluation: &reinforcement.Evaluation{Values: values, Iterations: 12},
				Policy:     always(16, models.DOWN),
			})
			So(frame.Cells[3][2].Value, ShouldEqual, 0.9)
			So(frame.Iteration, ShouldEqual, 2)
			So(frame.Status, ShouldEqual, "converged")
			So(frame.Sweeps, ShouldEqual, 12)
			So(frame.Changed, ShouldEqual, 1)
		})
	})
}

func TestViews(t *testing.T) {
	Convey("Given a frame of the 4x4 lake", t, func() {
		lake, err := models.Convert(models.Lake4x4, false)
		So(err, ShouldBeNil)
		frame := Converter(lake)(reinforcement.Progress{Iteration: 3, Policy: always(16, models.RIGHT)})

		Convey("The values grid updates every value and every non-terminal arrow", func() {
			updates := (&ValuesGrid{id: "valuesgrid"}).onUpdate(frame)
			// Five of the sixteen cells are terminal.
			So(len(updates), ShouldEqual, 16+11)
			So(updates[0].EleId, ShouldEqual, "0-0-value-text")
			So(updates[0].Ops[0], ShouldResemble, fastview.Op{Key: fastview.TextContent, Value: "0.000"})
			So(updates[1].EleId, ShouldEqual, "0-0-policy-arrow")
			So(updates[1].Ops[0].Value, ShouldEqual, "rotate(90)")
		})

		Convey("The status view reports the iteration", func() {
			updates := (&StatusView{id: "status"}).onUpdate(frame)
			So(updates[0].EleId, ShouldEqual, "status-iteration")
			So(updates[0].Ops[0].Value, ShouldEqual, "3")
		})

		Convey("The templates render the frame", func() {
			root := template.New("page").Funcs(template.FuncMap{
				"add":  func(i, j int) int { return i + j },
				"sub":  func(i, j int) int { return i - j },
				"mult": func(i, j int) int { return i * j },
				"div":  func(i, j int) int { return i / j },
			})
			gridName, err := (&ValuesGrid{id: "valuesgrid"}).Parse(root)
			So(err, ShouldBeNil)
			statusName, err := (&StatusView{id: "status"}).Parse(root)
			So(err, ShouldBeNil)
			_, err = root.Parse(`{{ template "` + statusName + `" . }}{{ template "` + gridName + `" . }}`)
			So(err, ShouldBeNil)

			buf := &bytes.Buffer{}
			So(root.Execute(buf, frame), ShouldBeNil)
			page := buf.String()
			So(page, ShouldContainSubstring, `id="3-2-value-text"`)
			So(page, ShouldContainSubstring, `id="0-0-policy-arrow"`)
			So(page, ShouldNotContainSubstring, `id="1-1-policy-arrow"`)
			So(page, ShouldContainSubstring, `id="status-iteration">3<`)
		})
	})
}
