package monitor_test

import (
	"fmt"

	"github.com/JakeFAU/workprogress/pkg/monitor"
)

// ExampleMonitor_CreateSubMonitor shows a child's progress scaled into its parent.
func ExampleMonitor_CreateSubMonitor() {
	root := monitor.New("import")
	if err := root.SetTotalWorkUnits(10); err != nil {
		panic(err)
	}
	root.AddListener(&monitor.ListenerFuncs{
		UnitsConsumed: func(ev monitor.Event) {
			fmt.Printf("%s: %.1f/%d\n", ev.Source.Path(), ev.Consumed, ev.Source.TotalWorkUnits())
		},
		WorkCompleted: func(ev monitor.Event) {
			fmt.Printf("%s: done\n", ev.Source.Path())
		},
	})

	_ = root.Consume(2)
	files, _ := root.CreateSubMonitor(8)
	_ = files.SetTotalWorkUnits(4)
	for i := 0; i < 4; i++ {
		_ = files.Consume(1)
	}
	// Output:
	// import: 2.0/10
	// import: 4.0/10
	// import: 6.0/10
	// import: 8.0/10
	// import: 10.0/10
	// import: 10.0/10
	// import: done
}
