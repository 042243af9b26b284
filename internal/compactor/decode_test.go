// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package compactor

import (
	"testing"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func marshalOrFail(t *testing.T, msg *gtfsrtpb.FeedMessage) []byte {
	t.Helper()
	data, err := proto.Marshal(msg)
	require.NoError(t, err)
	return data
}

func strPtr(s string) *string { return &s }
func u64Ptr(v uint64) *uint64 { return &v }
func u32Ptr(v uint32) *uint32 { return &v }
func i32Ptr(v int32) *int32   { return &v }

func TestDecodeVehiclePosition(t *testing.T) {
	msg := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: strPtr("2.0"),
			Timestamp:           u64Ptr(1700000000),
		},
		Entity: []*gtfsrtpb.FeedEntity{
			{
				Id: strPtr("v1"),
				Vehicle: &gtfsrtpb.VehiclePosition{
					Trip: &gtfsrtpb.TripDescriptor{
						TripId:  strPtr("trip-1"),
						RouteId: strPtr("route-1"),
					},
					Vehicle: &gtfsrtpb.VehicleDescriptor{
						Id: strPtr("bus-42"),
					},
					Position: &gtfsrtpb.Position{
						Latitude:  floatPtr(45.5),
						Longitude: floatPtr(-122.6),
					},
					StopId:    strPtr("stop-9"),
					Timestamp: u64Ptr(1700000001),
				},
			},
		},
	}
	data := marshalOrFail(t, msg)

	rows, err := Decode("source.pb", "https://gtfs.example.com/rt", data)
	require.NoError(t, err)
	require.Len(t, rows.VehiclePositions, 1)
	require.Empty(t, rows.TripUpdates)
	require.Empty(t, rows.ServiceAlerts)

	row := rows.VehiclePositions[0]
	require.Equal(t, "source.pb", row.SourceFile)
	require.Equal(t, "https://gtfs.example.com/rt", row.FeedURL)
	require.NotNil(t, row.FeedTimestamp)
	require.Equal(t, uint64(1700000000), *row.FeedTimestamp)
	require.Equal(t, "v1", *row.EntityID)
	require.Equal(t, "trip-1", *row.TripID)
	require.Equal(t, "bus-42", *row.VehicleID)
	require.Equal(t, "stop-9", *row.StopID)
	require.InDelta(t, 45.5, float64(*row.Latitude), 1e-6)
}

func floatPtr(f float32) *float32 { return &f }

func TestDecodeTripUpdateDenormalizesPerStopTime(t *testing.T) {
	msg := &gtfsrtpb.FeedMessage{
		Entity: []*gtfsrtpb.FeedEntity{
			{
				Id: strPtr("tu1"),
				TripUpdate: &gtfsrtpb.TripUpdate{
					Trip: &gtfsrtpb.TripDescriptor{TripId: strPtr("trip-1")},
					StopTimeUpdate: []*gtfsrtpb.TripUpdate_StopTimeUpdate{
						{
							StopSequence: u32Ptr(1),
							StopId:       strPtr("stop-a"),
							Arrival:      &gtfsrtpb.TripUpdate_StopTimeEvent{Delay: i32Ptr(30)},
						},
						{
							StopSequence: u32Ptr(2),
							StopId:       strPtr("stop-b"),
							Departure:    &gtfsrtpb.TripUpdate_StopTimeEvent{Delay: i32Ptr(60)},
						},
					},
				},
			},
		},
	}
	data := marshalOrFail(t, msg)

	rows, err := Decode("source.pb", "https://gtfs.example.com/rt", data)
	require.NoError(t, err)
	require.Len(t, rows.TripUpdates, 2)
	require.Equal(t, "trip-1", *rows.TripUpdates[0].TripID)
	require.Equal(t, "stop-a", *rows.TripUpdates[0].StopID)
	require.Equal(t, int32(30), *rows.TripUpdates[0].ArrivalDelay)
	require.Equal(t, "stop-b", *rows.TripUpdates[1].StopID)
	require.Equal(t, int32(60), *rows.TripUpdates[1].DepartureDelay)
}

func TestDecodeTripUpdateWithNoStopTimesYieldsOneNullRow(t *testing.T) {
	msg := &gtfsrtpb.FeedMessage{
		Entity: []*gtfsrtpb.FeedEntity{
			{
				Id:         strPtr("tu1"),
				TripUpdate: &gtfsrtpb.TripUpdate{Trip: &gtfsrtpb.TripDescriptor{TripId: strPtr("trip-1")}},
			},
		},
	}
	data := marshalOrFail(t, msg)

	rows, err := Decode("source.pb", "https://gtfs.example.com/rt", data)
	require.NoError(t, err)
	require.Len(t, rows.TripUpdates, 1)
	require.Nil(t, rows.TripUpdates[0].StopID)
	require.Nil(t, rows.TripUpdates[0].StopSequence)
}

func TestDecodeServiceAlertDenormalizesPerInformedEntity(t *testing.T) {
	msg := &gtfsrtpb.FeedMessage{
		Entity: []*gtfsrtpb.FeedEntity{
			{
				Id: strPtr("alert1"),
				Alert: &gtfsrtpb.Alert{
					Cause:  gtfsrtpb.Alert_CONSTRUCTION.Enum(),
					Effect: gtfsrtpb.Alert_DETOUR.Enum(),
					HeaderText: &gtfsrtpb.TranslatedString{
						Translation: []*gtfsrtpb.TranslatedString_Translation{
							{Text: strPtr("Detour in effect"), Language: strPtr("en")},
						},
					},
					InformedEntity: []*gtfsrtpb.EntitySelector{
						{RouteId: strPtr("route-1")},
						{StopId: strPtr("stop-9")},
					},
				},
			},
		},
	}
	data := marshalOrFail(t, msg)

	rows, err := Decode("source.pb", "https://gtfs.example.com/rt", data)
	require.NoError(t, err)
	require.Len(t, rows.ServiceAlerts, 2)
	require.Equal(t, "Detour in effect", *rows.ServiceAlerts[0].HeaderText)
	require.Equal(t, "route-1", *rows.ServiceAlerts[0].RouteID)
	require.Nil(t, rows.ServiceAlerts[0].StopID)
	require.Equal(t, "stop-9", *rows.ServiceAlerts[1].StopID)
	require.Nil(t, rows.ServiceAlerts[1].RouteID)
}

func TestDecodeServiceAlertWithNoInformedEntityYieldsOneNullRow(t *testing.T) {
	msg := &gtfsrtpb.FeedMessage{
		Entity: []*gtfsrtpb.FeedEntity{
			{Id: strPtr("alert1"), Alert: &gtfsrtpb.Alert{Cause: gtfsrtpb.Alert_OTHER_CAUSE.Enum()}},
		},
	}
	data := marshalOrFail(t, msg)

	rows, err := Decode("source.pb", "https://gtfs.example.com/rt", data)
	require.NoError(t, err)
	require.Len(t, rows.ServiceAlerts, 1)
	require.Nil(t, rows.ServiceAlerts[0].RouteID)
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	_, err := Decode("source.pb", "https://gtfs.example.com/rt", []byte{0xFF, 0xFF, 0xFF})
	require.Error(t, err)
}

func TestDecodeMixedEntityTypesRouteIndependently(t *testing.T) {
	msg := &gtfsrtpb.FeedMessage{
		Entity: []*gtfsrtpb.FeedEntity{
			{Id: strPtr("v1"), Vehicle: &gtfsrtpb.VehiclePosition{StopId: strPtr("s1")}},
			{Id: strPtr("tu1"), TripUpdate: &gtfsrtpb.TripUpdate{Trip: &gtfsrtpb.TripDescriptor{TripId: strPtr("t1")}}},
			{Id: strPtr("a1"), Alert: &gtfsrtpb.Alert{Cause: gtfsrtpb.Alert_OTHER_CAUSE.Enum()}},
		},
	}
	data := marshalOrFail(t, msg)

	rows, err := Decode("source.pb", "https://gtfs.example.com/rt", data)
	require.NoError(t, err)
	require.Len(t, rows.VehiclePositions, 1)
	require.Len(t, rows.TripUpdates, 1)
	require.Len(t, rows.ServiceAlerts, 1)
}
