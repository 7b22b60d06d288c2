package tracegc_test

import (
	"fmt"

	"github.com/hupe1980/tracegc"
)

type Person struct {
	Age    int64
	Friend tracegc.Ref[Person]
}

func Example() {
	h, err := tracegc.NewHeap()
	if err != nil {
		panic(err)
	}
	defer h.Close()

	alice, _ := tracegc.New[Person](h)
	bob, _ := tracegc.New[Person](h)
	alice.Age, bob.Age = 30, 31

	// alice and bob refer to each other.
	alice.Friend.InitAt(h, bob)
	bob.Friend.InitAt(h, alice)

	root := tracegc.NewRoot(h, alice)

	stats := h.MustCollect()
	fmt.Println("freed:", stats.Freed, "live:", stats.LiveObjects)
	fmt.Println("alice's friend:", root.Get().Friend.Get().Age)

	root.Release()

	stats = h.MustCollect()
	fmt.Println("freed:", stats.Freed, "live:", stats.LiveObjects)

	// Output:
	// freed: 0 live: 2
	// alice's friend: 31
	// freed: 2 live: 0
}

func ExampleHeap_Free() {
	h, _ := tracegc.NewHeap()
	defer h.Close()

	p, _ := tracegc.New[Person](h)

	var ref tracegc.Ref[Person]
	ref.InitAt(h, p)
	defer ref.Release()

	fmt.Println(ref.Valid())
	_ = tracegc.FreeObject(h, p)
	fmt.Println(ref.Valid())

	// Output:
	// true
	// false
}
