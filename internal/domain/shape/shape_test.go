package shape_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/okian/skyscraper/internal/domain/shape"
	"github.com/okian/skyscraper/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGenerator_Generate(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		gen := shape.NewGenerator(shape.WithSeed(7))

		Convey("When generating many inventories", func() {
			seenSizes := map[int]bool{}
			for i := 0; i < 500; i++ {
				inv := gen.Generate()

				total := 0
				for _, g := range inv.Groups {
					total += g.Count
				}
				counts := map[shape.Kind]int{}
				for _, s := range inv.Shapes {
					counts[s.Kind]++
					So(s.Size, ShouldBeBetweenOrEqual, shape.MinSize, shape.MaxSize)
					So(s.Kind.Valid(), ShouldBeTrue)
				}
				seenSizes[len(inv.Shapes)] = true

				So(total, ShouldEqual, len(inv.Shapes))
				for k, c := range counts {
					So(inv.Groups[k].Count, ShouldEqual, c)
				}
				So(inv.Validate(), ShouldBeNil)
			}

			Convey("Then every inventory size in range should occur", func() {
				for n := shape.MinShapes; n <= shape.MaxShapes; n++ {
					So(seenSizes[n], ShouldBeTrue)
				}
				So(len(seenSizes), ShouldEqual, shape.MaxShapes-shape.MinShapes+1)
			})
		})
	})

	Convey("Given two generators with the same seed", t, func() {
		a := shape.NewGenerator(shape.WithSeed(42)).Generate()
		b := shape.NewGenerator(shape.WithSeed(42)).Generate()

		Convey("Then they produce the same inventory", func() {
			So(a, ShouldResemble, b)
		})
	})

	Convey("Given a generator shared by goroutines", t, func() {
		gen := shape.NewGenerator()
		var wg sync.WaitGroup
		errs := make(chan error, 64)
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- gen.Generate().Validate()
			}()
		}
		wg.Wait()
		close(errs)

		Convey("Then every result is valid", func() {
			for err := range errs {
				So(err, ShouldBeNil)
			}
		})
	})
}

func TestInventory_Validate(t *testing.T) {
	valid := func() shape.Inventory {
		inv := shape.Inventory{Groups: map[shape.Kind]shape.Group{}}
		for i := 0; i < 9; i++ {
			k := shape.Kinds[i%len(shape.Kinds)]
			inv.Shapes = append(inv.Shapes, shape.Shape{Kind: k, Size: 40})
			g := inv.Groups[k]
			g.Count++
			inv.Groups[k] = g
		}
		return inv
	}

	Convey("Given a hand-built valid inventory", t, func() {
		So(valid().Validate(), ShouldBeNil)
	})

	Convey("Given inventories that break the invariants", t, func() {
		cases := []struct {
			name   string
			mutate func(*shape.Inventory)
		}{
			{"miscounted group", func(inv *shape.Inventory) { inv.Groups[shape.Square] = shape.Group{Count: 5} }},
			{"extra group", func(inv *shape.Inventory) { inv.Groups["hexagon"] = shape.Group{Count: 0} }},
			{"too few shapes", func(inv *shape.Inventory) { inv.Shapes = inv.Shapes[:3] }},
			{"size too small", func(inv *shape.Inventory) { inv.Shapes[0].Size = 29 }},
			{"size too large", func(inv *shape.Inventory) { inv.Shapes[0].Size = 51 }},
			{"unknown kind", func(inv *shape.Inventory) { inv.Shapes[0].Kind = "hexagon" }},
		}
		for _, tc := range cases {
			Convey("Then validation rejects a "+tc.name, func() {
				inv := valid()
				tc.mutate(&inv)
				err := inv.Validate()
				So(err, ShouldNotBeNil)
				So(errors.Is(err, types.ErrInvariantViolation), ShouldBeTrue)
			})
		}
	})
}

func TestInventory_Wire(t *testing.T) {
	Convey("Given a generated inventory", t, func() {
		inv := shape.NewGenerator(shape.WithSeed(1)).Generate()

		Convey("When encoding to JSON", func() {
			raw, err := json.Marshal(inv)
			So(err, ShouldBeNil)

			Convey("Then it uses the view's field names", func() {
				So(string(raw), ShouldContainSubstring, `"shapes":[{"type":`)
				So(string(raw), ShouldContainSubstring, `"shapeGroups":{`)
				So(string(raw), ShouldContainSubstring, `"count":`)
			})
		})

		Convey("When cloning", func() {
			c := inv.Clone()
			c.Shapes[0].Size = 0
			for k := range c.Groups {
				delete(c.Groups, k)
			}

			Convey("Then the original is untouched", func() {
				So(inv.Validate(), ShouldBeNil)
			})
		})
	})
}
