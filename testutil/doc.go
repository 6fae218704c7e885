// Package testutil holds helpers shared by package tests: component
// lifecycle with automatic cleanup and synthetic audio fixtures.
//
//	func TestRoutes(t *testing.T) {
//	    pool := workerpool.New(workerpool.Config{Workers: 2}, logger.Nop())
//	    testutil.Start(t, pool)
//	    path, _ := testutil.SpeechWithPause(t)
//	    ...
//	}
package testutil
