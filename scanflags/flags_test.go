package scanflags_test

import (
	"flag"
	"testing"

	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigmachine/ec2system"
	"github.com/grailbio/bigscan/scanflags"
)

func TestProvider(t *testing.T) {
	local := &scanflags.Local{}
	if got, want := local.Name(), "local"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := local.System(), bigmachine.Local; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	internal := &scanflags.Internal{}
	if got, want := internal.Name(), "internal"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	ec2 := &scanflags.EC2{}
	if got, want := ec2.Name(), "EC2"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := ec2.Set("x=y"); err == nil {
		t.Errorf("expected an error")
	}
	if err := ec2.Set("dataspace=122"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ec2.Set("instance=c5.2xlarge"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	sys, ok := ec2.System().(*ec2system.System)
	if !ok {
		t.Fatalf("got %T, want *ec2system.System", ec2.System())
	}
	if got, want := sys.Dataspace, uint(122); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := sys.InstanceType, "c5.2xlarge"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFlags(t *testing.T) {
	tf := &scanflags.Flags{}
	if err := tf.System.Set("local"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := tf.System.Set("local:an=option"); err == nil {
		t.Errorf("expected an error")
	}
	tf = &scanflags.Flags{}
	if err := tf.System.Set("internal"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := tf.System.Set("internal:an=option"); err == nil {
		t.Errorf("expected an error")
	}
	tf = &scanflags.Flags{}
	if err := tf.System.Set("ec2"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := tf.System.Set("ec2:an=option"); err == nil {
		t.Errorf("expected an error")
	}
	if err := tf.System.Set("ec2:dataspace=200,rootsize=10"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if got, want := tf.System.String(), "EC2:dataspace=200,rootsize=10"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := tf.System.Set("nonexistent"); err == nil {
		t.Errorf("expected an error")
	}
}

func TestRegisterFlags(t *testing.T) {
	scanflags.RegisterSystemProfile("test-profile", "ec2:instance=m4.xlarge")
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var tf scanflags.Flags
	scanflags.RegisterFlags(fs, &tf, "")
	if got, want := tf.System.String(), "local"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if tf.System.Specified {
		t.Error("default system marked as specified")
	}
	if err := fs.Parse([]string{"-system=test-profile:ondemand=true", "-console-status"}); err != nil {
		t.Fatal(err)
	}
	if !tf.System.Specified || !tf.ConsoleStatus {
		t.Errorf("flags not set: %+v", tf)
	}
	if got, want := tf.System.String(), "EC2:instance=m4.xlarge,ondemand=true"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
