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
	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/transitfeeds/gtfs-rt-archive/internal/errs"
)

// Decode parses one archived protobuf payload and flattens its entities
// into the three row schemas, per §4.6. Routing is by populated oneof —
// GetVehicle/GetTripUpdate/GetAlert return nil when the field is absent —
// never by zero-value comparison.
func Decode(sourceFile, feedURL string, data []byte) (DecodedRows, error) {
	msg := &gtfsrtpb.FeedMessage{}
	if err := proto.Unmarshal(data, msg); err != nil {
		return DecodedRows{}, &errs.DecodeError{SourceKey: sourceFile, Err: err}
	}

	var feedTimestamp *uint64
	if h := msg.GetHeader(); h != nil && h.Timestamp != nil {
		feedTimestamp = h.Timestamp
	}

	var out DecodedRows
	for _, entity := range msg.GetEntity() {
		if v := entity.GetVehicle(); v != nil {
			out.VehiclePositions = append(out.VehiclePositions,
				vehiclePositionRow(sourceFile, feedURL, feedTimestamp, entity.GetId(), v))
		}
		if tu := entity.GetTripUpdate(); tu != nil {
			out.TripUpdates = append(out.TripUpdates,
				tripUpdateRows(sourceFile, feedURL, feedTimestamp, tu)...)
		}
		if a := entity.GetAlert(); a != nil {
			out.ServiceAlerts = append(out.ServiceAlerts,
				serviceAlertRows(sourceFile, feedURL, feedTimestamp, a)...)
		}
	}
	return out, nil
}

func vehiclePositionRow(sourceFile, feedURL string, feedTimestamp *uint64, entityID string, v *gtfsrtpb.VehiclePosition) VehiclePositionRow {
	row := VehiclePositionRow{
		SourceFile:    sourceFile,
		FeedURL:       feedURL,
		FeedTimestamp: feedTimestamp,
	}
	if entityID != "" {
		row.EntityID = &entityID
	}

	if trip := v.GetTrip(); trip != nil {
		applyTripDescriptor(trip, &row.TripID, &row.RouteID, &row.DirectionID, &row.StartTime, &row.StartDate, &row.ScheduleRelationship)
	}
	if veh := v.GetVehicle(); veh != nil {
		applyVehicleDescriptor(veh, &row.VehicleID, &row.VehicleLabel, &row.LicensePlate)
	}
	if pos := v.GetPosition(); pos != nil {
		if pos.Latitude != nil {
			row.Latitude = pos.Latitude
		}
		if pos.Longitude != nil {
			row.Longitude = pos.Longitude
		}
		if pos.Bearing != nil {
			row.Bearing = pos.Bearing
		}
		if pos.Odometer != nil {
			row.Odometer = pos.Odometer
		}
		if pos.Speed != nil {
			row.Speed = pos.Speed
		}
	}
	if v.CurrentStopSequence != nil {
		seq := int32(v.GetCurrentStopSequence())
		row.CurrentStopSequence = &seq
	}
	if v.StopId != nil {
		row.StopID = v.StopId
	}
	if v.CurrentStatus != nil {
		status := v.GetCurrentStatus().String()
		row.CurrentStatus = &status
	}
	if v.Timestamp != nil {
		row.Timestamp = v.Timestamp
	}
	if v.CongestionLevel != nil {
		level := v.GetCongestionLevel().String()
		row.CongestionLevel = &level
	}
	if v.OccupancyStatus != nil {
		occ := v.GetOccupancyStatus().String()
		row.OccupancyStatus = &occ
	}
	if v.OccupancyPercentage != nil {
		pct := int32(v.GetOccupancyPercentage())
		row.OccupancyPercentage = &pct
	}
	return row
}

// tripUpdateRows denormalizes one TripUpdate by stop_time_update: one row
// per child, or a single row with stop-time columns null if there are none.
func tripUpdateRows(sourceFile, feedURL string, feedTimestamp *uint64, tu *gtfsrtpb.TripUpdate) []TripUpdateRow {
	base := TripUpdateRow{
		SourceFile:    sourceFile,
		FeedURL:       feedURL,
		FeedTimestamp: feedTimestamp,
	}
	if trip := tu.GetTrip(); trip != nil {
		applyTripDescriptor(trip, &base.TripID, &base.RouteID, &base.DirectionID, &base.StartTime, &base.StartDate, &base.ScheduleRelationship)
	}
	if veh := tu.GetVehicle(); veh != nil {
		applyVehicleDescriptor(veh, &base.VehicleID, &base.VehicleLabel, &base.LicensePlate)
	}
	if tu.Timestamp != nil {
		base.TripTimestamp = tu.Timestamp
	}
	if tu.Delay != nil {
		base.TripDelay = tu.Delay
	}

	updates := tu.GetStopTimeUpdate()
	if len(updates) == 0 {
		return []TripUpdateRow{base}
	}

	rows := make([]TripUpdateRow, 0, len(updates))
	for _, stu := range updates {
		row := base
		if stu.StopSequence != nil {
			seq := int32(stu.GetStopSequence())
			row.StopSequence = &seq
		}
		if stu.StopId != nil {
			row.StopID = stu.StopId
		}
		if arr := stu.GetArrival(); arr != nil {
			row.ArrivalDelay = arr.Delay
			row.ArrivalTime = arr.Time
			row.ArrivalUncertainty = arr.Uncertainty
		}
		if dep := stu.GetDeparture(); dep != nil {
			row.DepartureDelay = dep.Delay
			row.DepartureTime = dep.Time
			row.DepartureUncertainty = dep.Uncertainty
		}
		if stu.ScheduleRelationship != nil {
			rel := stu.GetScheduleRelationship().String()
			row.StopScheduleRelationship = &rel
		}
		rows = append(rows, row)
	}
	return rows
}

// serviceAlertRows denormalizes one Alert by informed_entity: one row per
// child, or a single row with entity columns null if there are none.
func serviceAlertRows(sourceFile, feedURL string, feedTimestamp *uint64, a *gtfsrtpb.Alert) []ServiceAlertRow {
	base := ServiceAlertRow{
		SourceFile:    sourceFile,
		FeedURL:       feedURL,
		FeedTimestamp: feedTimestamp,
	}
	if a.Cause != nil {
		cause := a.GetCause().String()
		base.Cause = &cause
	}
	if a.Effect != nil {
		effect := a.GetEffect().String()
		base.Effect = &effect
	}
	if a.SeverityLevel != nil {
		severity := a.GetSeverityLevel().String()
		base.SeverityLevel = &severity
	}
	if periods := a.GetActivePeriod(); len(periods) > 0 {
		base.ActivePeriodStart = periods[0].Start
		base.ActivePeriodEnd = periods[0].End
	}
	base.HeaderText = firstTranslation(a.GetHeaderText())
	base.DescriptionText = firstTranslation(a.GetDescriptionText())
	base.URL = firstTranslation(a.GetUrl())

	entities := a.GetInformedEntity()
	if len(entities) == 0 {
		return []ServiceAlertRow{base}
	}

	rows := make([]ServiceAlertRow, 0, len(entities))
	for _, ie := range entities {
		row := base
		if ie.AgencyId != nil {
			row.AgencyID = ie.AgencyId
		}
		if ie.RouteId != nil {
			row.RouteID = ie.RouteId
		}
		if ie.RouteType != nil {
			row.RouteType = ie.RouteType
		}
		if ie.StopId != nil {
			row.StopID = ie.StopId
		}
		if trip := ie.GetTrip(); trip != nil {
			row.TripID = trip.TripId
			row.TripRouteID = trip.RouteId
			if trip.DirectionId != nil {
				dir := int32(trip.GetDirectionId())
				row.TripDirectionID = &dir
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// firstTranslation takes the first translation's text, per §4.6's "English
// is not required" rule — whichever language the publisher listed first.
func firstTranslation(ts *gtfsrtpb.TranslatedString) *string {
	if ts == nil {
		return nil
	}
	translations := ts.GetTranslation()
	if len(translations) == 0 {
		return nil
	}
	text := translations[0].GetText()
	return &text
}

func applyTripDescriptor(trip *gtfsrtpb.TripDescriptor, tripID, routeID **string, directionID **int32, startTime, startDate, scheduleRelationship **string) {
	if trip.TripId != nil {
		*tripID = trip.TripId
	}
	if trip.RouteId != nil {
		*routeID = trip.RouteId
	}
	if trip.DirectionId != nil {
		dir := int32(trip.GetDirectionId())
		*directionID = &dir
	}
	if trip.StartTime != nil {
		*startTime = trip.StartTime
	}
	if trip.StartDate != nil {
		*startDate = trip.StartDate
	}
	if trip.ScheduleRelationship != nil {
		rel := trip.GetScheduleRelationship().String()
		*scheduleRelationship = &rel
	}
}

func applyVehicleDescriptor(v *gtfsrtpb.VehicleDescriptor, id, label, licensePlate **string) {
	if v.Id != nil {
		*id = v.Id
	}
	if v.Label != nil {
		*label = v.Label
	}
	if v.LicensePlate != nil {
		*licensePlate = v.LicensePlate
	}
}
