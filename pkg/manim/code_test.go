package manim

import "testing"

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "  from manim import *\n", "from manim import *"},
		{"python fence", "```python\nfrom manim import *\n```", "from manim import *"},
		{"bare fence", "```\nx = 1\n```", "x = 1"},
		{"prose around fence", "Here is the code:\n```py\nx = 1\n```\nEnjoy!", "x = 1"},
		{"unterminated fence", "```python\nx = 1", "x = 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.raw); got != tt.want {
				t.Fatalf("StripFences()=%q, want %q", got, tt.want)
			}
		})
	}
}

func TestSceneClassName(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"scene", "from manim import *\n\nclass MyScene(Scene):\n    def construct(self):\n        pass\n", "MyScene"},
		{"three d", "class Orbit( ThreeDScene ):\n    pass", "Orbit"},
		{"qualified", "class Grow(manim.Scene):\n    pass", "Grow"},
		{"helper first", "class Helper(object):\n    pass\nclass Main(MovingCameraScene):\n    pass", "Main"},
		{"none", "print('hello')", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SceneClassName(tt.code); got != tt.want {
				t.Fatalf("SceneClassName()=%q, want %q", got, tt.want)
			}
		})
	}
}
