package routine

import "github.com/cjeanneret/godrive/internal/logic/motion"

func f(v float64) *float64 { return &v }
func ms(v int) *int { return &v }

func op(k motion.Kind) string { return string(k) }

// chainedTurn turns with a voltage floor and no dwell, so each turn flows
// into the next one.
func chainedTurn(angle float64) Step {
	return Step{
		Op: op(motion.KindTurnToAngle), Angle: angle,
		MinVoltage: f(5), SettleTimeMs: ms(0), SettleError: f(3),
	}
}

// Builtin returns the tuning routines. Each one exercises a single
// controller family so its constants can be tuned against the traces.
func Builtin() []Program {
	origin := Step{Op: OpSetCoordinates}
	return []Program{
		{
			Name:        "drive",
			Description: "Distance drives of increasing length, then back",
			Steps: []Step{
				{Op: OpSetHeading},
				{Op: op(motion.KindDriveDistance), Distance: 6},
				{Op: op(motion.KindDriveDistance), Distance: 12},
				{Op: op(motion.KindDriveDistance), Distance: 18},
				{Op: op(motion.KindDriveDistance), Distance: -36},
			},
		},
		{
			Name:        "heading",
			Description: "Distance drives holding explicit headings",
			Steps: []Step{
				{Op: OpSetHeading},
				{Op: op(motion.KindDriveDistance), Distance: 10, Heading: f(15)},
				{Op: op(motion.KindDriveDistance), Distance: 20, Heading: f(45)},
				{Op: op(motion.KindDriveDistance), Distance: -30, Heading: f(0)},
			},
		},
		{
			Name:        "turn",
			Description: "Chained turns with a voltage floor, ending back at 0",
			Steps: []Step{
				{Op: OpSetHeading},
				chainedTurn(5),
				chainedTurn(30),
				chainedTurn(90),
				chainedTurn(225),
				chainedTurn(360),
				{Op: OpStop, Brake: "hold"},
			},
		},
		{
			Name:        "swing",
			Description: "Left swing out, right swing back",
			Steps: []Step{
				{Op: OpSetHeading},
				{Op: op(motion.KindLeftSwing), Angle: 110},
				{Op: op(motion.KindRightSwing), Angle: 0},
			},
		},
		{
			Name:        "full",
			Description: "Drives, turns and swings without odometry targets",
			Steps: []Step{
				{Op: OpSetHeading},
				{Op: op(motion.KindDriveDistance), Distance: 24},
				{Op: op(motion.KindTurnToAngle), Angle: -45},
				{Op: op(motion.KindDriveDistance), Distance: -36},
				{Op: op(motion.KindRightSwing), Angle: -90},
				{Op: op(motion.KindDriveDistance), Distance: 24},
				{Op: op(motion.KindTurnToAngle), Angle: 0},
			},
		},
		{
			Name:        "odom_drive",
			Description: "Point drives along the Y axis",
			Steps: []Step{
				origin,
				{Op: op(motion.KindDriveToPoint), X: 0, Y: 6},
				{Op: op(motion.KindDriveToPoint), X: 0, Y: 18},
				{Op: op(motion.KindDriveToPoint), X: 0, Y: 36},
				{Op: op(motion.KindDriveToPoint), X: 0, Y: 0},
			},
		},
		{
			Name:        "odom_turn",
			Description: "Point turns around the compass",
			Steps: []Step{
				origin,
				{Op: op(motion.KindTurnToPoint), X: 9.96, Y: 0.87},
				{Op: op(motion.KindTurnToPoint), X: 8.66, Y: 5},
				{Op: op(motion.KindTurnToPoint), X: 0, Y: 10},
				{Op: op(motion.KindTurnToPoint), X: -7.07, Y: -7.07},
				{Op: op(motion.KindTurnToPoint), X: 10, Y: 0},
			},
		},
		{
			Name:        "odom_heading",
			Description: "Point drives that need heading correction",
			Steps: []Step{
				origin,
				{Op: op(motion.KindDriveToPoint), X: 5, Y: 18},
				{Op: op(motion.KindDriveToPoint), X: 20, Y: 35},
				{Op: op(motion.KindDriveToPoint), X: 0, Y: 0},
			},
		},
		{
			Name:        "odom_boomerang",
			Description: "One pose drive arriving sideways",
			Steps: []Step{
				origin,
				{Op: op(motion.KindDriveToPose), X: 24, Y: 24, Angle: 90, SettleError: f(1)},
			},
		},
		{
			Name:        "odom_full",
			Description: "Triangle with point turns and point drives",
			Steps: []Step{
				origin,
				{Op: op(motion.KindDriveToPoint), X: 0, Y: 24},
				{Op: op(motion.KindTurnToPoint), X: 26.833, Y: 0, AngleOffset: f(180)},
				{Op: op(motion.KindDriveToPoint), X: 26.833, Y: 0},
				{Op: op(motion.KindTurnToPoint), X: 0, Y: 0},
				{Op: op(motion.KindDriveToPoint), X: 0, Y: 0},
				{Op: op(motion.KindTurnToAngle), Angle: 0},
			},
		},
		{
			Name:        "pursuit",
			Description: "Pure pursuit around a 24 in square",
			Steps: []Step{
				origin,
				{Op: op(motion.KindFollowPath), Path: []Waypoint{{0, 24}, {24, 24}, {24, 0}, {0, 0}}},
				{Op: op(motion.KindTurnToAngle), Angle: 0},
			},
		},
	}
}
