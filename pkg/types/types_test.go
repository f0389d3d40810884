package types

import "testing"

func TestDescriptors(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{Int, "I"},
		{Boolean, "Z"},
		{Byte, "B"},
		{Short, "S"},
		{Char, "C"},
		{Long, "J"},
		{Float, "F"},
		{Double, "D"},
		{Void, "V"},
		{String, "Ljava/lang/String;"},
		{Object, "Ljava/lang/Object;"},
		{Reference("java/util/List"), "Ljava/util/List;"},
		{Array(Int), "[I"},
		{Array(Array(String)), "[[Ljava/lang/String;"},
	}
	for _, tt := range tests {
		if got := tt.typ.Descriptor(); got != tt.want {
			t.Errorf("%s: descriptor = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestMethodDescriptor(t *testing.T) {
	sig := MethodSig(Void, "main", Array(String))
	if got, want := sig.Descriptor(), "([Ljava/lang/String;)V"; got != want {
		t.Errorf("descriptor = %q, want %q", got, want)
	}
	sig = MethodSig(Long, "mix", Int, Double, Reference("a/B"))
	if got, want := sig.Descriptor(), "(IDLa/B;)J"; got != want {
		t.Errorf("descriptor = %q, want %q", got, want)
	}
}

func TestConstructorSig(t *testing.T) {
	sig := ConstructorSig(Int)
	if !sig.IsConstructor() {
		t.Fatal("ConstructorSig is not a constructor")
	}
	if sig.Return != Void {
		t.Errorf("constructor return = %s, want void", sig.Return)
	}
	if got, want := sig.Descriptor(), "(I)V"; got != want {
		t.Errorf("descriptor = %q, want %q", got, want)
	}
}

func TestEquals(t *testing.T) {
	if !Reference("a/B").Equals(Reference("a/B")) {
		t.Error("identical references differ")
	}
	if Reference("a/B").Equals(Reference("a/C")) {
		t.Error("distinct references equal")
	}
	if !Array(Int).Equals(Array(Int)) {
		t.Error("identical arrays differ")
	}
	if Array(Int).Equals(Array(Long)) {
		t.Error("distinct arrays equal")
	}
	if String.Equals(Reference("java/lang/String")) {
		t.Error("string tag equals plain reference")
	}
}

func TestStackType(t *testing.T) {
	// Small integrals collapse to int on the operand stack.
	for _, small := range []Type{Byte, Boolean, Short, Char} {
		if StackType(small) != Int {
			t.Errorf("StackType(%s) = %s, want int", small, StackType(small))
		}
	}
	for _, same := range []Type{Int, Long, Float, Double, Object, Array(Int)} {
		if !StackType(same).Equals(same) {
			t.Errorf("StackType(%s) = %s, want unchanged", same, StackType(same))
		}
	}
}

func TestSlotWidth(t *testing.T) {
	if SlotWidth(Long) != 2 || SlotWidth(Double) != 2 {
		t.Error("wide types must take two slots")
	}
	if SlotWidth(Int) != 1 || SlotWidth(Object) != 1 || SlotWidth(Array(Double)) != 1 {
		t.Error("narrow types must take one slot")
	}
}

func TestPromote(t *testing.T) {
	tests := []struct {
		a, b, want Type
	}{
		{Int, Int, Int},
		{Byte, Short, Int},
		{Int, Long, Long},
		{Long, Float, Float},
		{Float, Double, Double},
		{Int, Double, Double},
	}
	for _, tt := range tests {
		got, ok := Promote(tt.a, tt.b)
		if !ok || !got.Equals(tt.want) {
			t.Errorf("Promote(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
	if _, ok := Promote(Int, Object); ok {
		t.Error("Promote accepted a reference operand")
	}
}
