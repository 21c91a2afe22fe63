package main

import (
	"os"
	"os/exec"

	"github.com/goyek/goyek/v2"
)

var vet = goyek.Define(goyek.Task{
	Name:  "vet",
	Usage: "Run go vet on all packages",
	Action: func(a *goyek.A) {
		run(a, "go", "vet", "./...")
	},
})

var test = goyek.Define(goyek.Task{
	Name:  "test",
	Usage: "Run unit tests with the race detector",
	Action: func(a *goyek.A) {
		run(a, "go", "test", "-race", "-short", "./...")
	},
})

var build = goyek.Define(goyek.Task{
	Name:  "build",
	Usage: "Build the promptbatch binary into bin/",
	Action: func(a *goyek.A) {
		run(a, "go", "build", "-o", "bin/promptbatch", "./cmd/promptbatch")
	},
})

var all = goyek.Define(goyek.Task{
	Name:  "all",
	Usage: "vet, test and build",
	Deps:  goyek.Deps{vet, test, build},
})

func run(a *goyek.A, name string, args ...string) {
	a.Helper()
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		a.Error(err)
	}
}

func main() {
	goyek.SetDefault(all)
	goyek.Main(os.Args[1:])
}
